package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

var ErrNoJSONInResponse = errors.New("could not extract JSON from model response")

// isStructuredOutputEnabled reports whether the provider supports a native JSON mode
func isStructuredOutputEnabled() bool {
	return llmProvider == "ollama" || llmProvider == "googleai"
}

// callLLMWithStructuredOutput makes a text-only LLM call, asking for JSON when the provider supports it
func (app *App) callLLMWithStructuredOutput(ctx context.Context, prompt string) (string, error) {
	if app.LLM == nil {
		return "", fmt.Errorf("LLM is not configured")
	}

	messages := []llms.MessageContent{
		{
			Parts: []llms.ContentPart{
				llms.TextContent{
					Text: prompt,
				},
			},
			Role: llms.ChatMessageTypeHuman,
		},
	}

	var options []llms.CallOption
	if isStructuredOutputEnabled() {
		options = append(options, llms.WithJSONMode())
	}

	completion, err := app.LLM.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return completion.Choices[0].Content, nil
}

// extractJSONObject returns the text between the first '{' and the last '}'.
// Models tend to wrap the object in prose or markdown fences.
func extractJSONObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSONInResponse
	}
	return response[start : end+1], nil
}

// parseLeadScore decodes a model reply into a LeadScore
func parseLeadScore(response string) (*LeadScore, error) {
	raw, err := extractJSONObject(strings.TrimSpace(response))
	if err != nil {
		return nil, err
	}

	var score LeadScore
	if err := json.Unmarshal([]byte(raw), &score); err != nil {
		return nil, fmt.Errorf("failed to parse structured response: %w", err)
	}
	return &score, nil
}
