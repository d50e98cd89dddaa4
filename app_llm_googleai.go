package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

var (
	ErrInvalidAPIKey = errors.New("API key was rejected")
	ErrQuotaExceeded = errors.New("API quota exhausted")
)

// GoogleAIProvider implements llms.Model for the Gemini API using google.golang.org/genai
type GoogleAIProvider struct {
	client         *genai.Client
	thinkingBudget *int32
	model          string
}

// NewGoogleAIProvider creates a new GoogleAIProvider instance
func NewGoogleAIProvider(ctx context.Context, model string, apiKey string, thinkingBudget *int32) (*GoogleAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", googleAPIKeyName)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create googleai client: %w", err)
	}

	return &GoogleAIProvider{
		client:         client,
		thinkingBudget: thinkingBudget,
		model:          model,
	}, nil
}

// generationConfig translates langchaingo call options into a Gemini request config
func (p *GoogleAIProvider) generationConfig(options ...llms.CallOption) *genai.GenerateContentConfig {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	var config *genai.GenerateContentConfig
	ensure := func() *genai.GenerateContentConfig {
		if config == nil {
			config = &genai.GenerateContentConfig{}
		}
		return config
	}

	if p.thinkingBudget != nil {
		ensure().ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(*p.thinkingBudget),
		}
	}
	if opts.JSONMode {
		ensure().ResponseMIMEType = "application/json"
	}
	if opts.Temperature > 0 {
		ensure().Temperature = genai.Ptr(float32(opts.Temperature))
	}
	return config
}

// GenerateText sends a text generation request to Gemini API and joins the text parts of the first candidate
func (p *GoogleAIProvider) GenerateText(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("googleai client not initialized")
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), p.generationConfig(options...))
	if err != nil {
		return "", classifyGoogleAIError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("googleai GenerateContent API returned empty response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("googleai GenerateContent API returned a candidate with no content (finish reason %q)", candidate.FinishReason)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("googleai GenerateContent API returned a candidate with empty text")
	}
	return text.String(), nil
}

// classifyGoogleAIError maps API failures onto ErrInvalidAPIKey and ErrQuotaExceeded
func classifyGoogleAIError(err error) error {
	var code int
	var message string

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, message = apiErr.Code, apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code, message = apiErrPtr.Code, apiErrPtr.Message
	default:
		return fmt.Errorf("googleai GenerateContent API error: %w", err)
	}

	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, message)
	case code == http.StatusUnauthorized || code == http.StatusForbidden,
		code == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "api key"):
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, message)
	default:
		return fmt.Errorf("googleai GenerateContent API error: %w", err)
	}
}

/*
GenerateContent implements the llms.Model interface for GoogleAIProvider.
It adapts a single-message prompt to the Google Gemini API and wraps the result.
*/
func (p *GoogleAIProvider) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(messages) == 0 || len(messages[0].Parts) == 0 {
		return nil, fmt.Errorf("no prompt provided")
	}
	textPart, ok := messages[0].Parts[0].(llms.TextContent)
	if !ok {
		return nil, fmt.Errorf("first message part is not TextContent")
	}
	result, err := p.GenerateText(ctx, textPart.Text, opts...)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: result,
			},
		},
	}, nil
}

// Call implements the llms.Model interface for compatibility with langchaingo.
func (p *GoogleAIProvider) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return p.GenerateText(ctx, prompt, opts...)
}

// ProviderName returns the provider name
func (p *GoogleAIProvider) ProviderName() string {
	return "googleai"
}
