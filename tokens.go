package main

import (
	"bytes"
	"fmt"
	"regexp"
	"text/template"

	"github.com/tmc/langchaingo/llms"
)

// tokenLimit caps the size of the scoring prompt. Zero or negative disables truncation.
var tokenLimit int

var pageSectionStart = regexp.MustCompile(`(?m)^\[PAGE: `)

// getAvailableTokensForContent calculates how many tokens are available for content
// by rendering the template with empty content and counting tokens
func getAvailableTokensForContent(tmpl *template.Template, data map[string]interface{}) (int, error) {
	if tokenLimit <= 0 {
		return -1, nil
	}

	templateData := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		templateData[k] = v
	}
	templateData["Content"] = ""

	var promptBuffer bytes.Buffer
	if err := tmpl.Execute(&promptBuffer, templateData); err != nil {
		return 0, fmt.Errorf("error executing template: %w", err)
	}

	// Safety margin for the boundary between template and content
	promptTokens := getTokenCount(promptBuffer.String()) + 10
	log.Debugf("Prompt template uses %d tokens", promptTokens)

	availableTokens := tokenLimit - promptTokens
	if availableTokens < 0 {
		return 0, fmt.Errorf("prompt template exceeds token limit")
	}
	return availableTokens, nil
}

func getTokenCount(content string) int {
	return llms.CountTokens(llmModel, content)
}

// truncateContentByTokens shortens website content to at most availableTokens tokens.
// Whole [PAGE: ...] sections are kept first, so the model sees complete pages;
// the first section that does not fit is cut at the longest prefix that does.
// A negative availableTokens disables truncation.
func truncateContentByTokens(content string, availableTokens int) (string, error) {
	if availableTokens < 0 || tokenLimit <= 0 {
		return content, nil
	}
	if getTokenCount(content) <= availableTokens {
		return content, nil
	}

	boundaries := sectionBoundaries(content)
	kept := 0
	next := len(content)
	for _, b := range boundaries {
		if getTokenCount(content[:b]) > availableTokens {
			next = b
			break
		}
		kept = b
	}

	// Binary search over runes of the section that did not fit
	runes := []rune(content[kept:next])
	low, high, validCut := 0, len(runes), 0
	for low <= high {
		mid := (low + high) / 2
		if getTokenCount(content[:kept]+string(runes[:mid])) <= availableTokens {
			validCut = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	truncated := content[:kept] + string(runes[:validCut])
	if getTokenCount(truncated) > availableTokens {
		return "", fmt.Errorf("truncated content still exceeds the available token limit")
	}
	log.Debugf("Truncated website content from %d to %d bytes", len(content), len(truncated))
	return truncated, nil
}

// sectionBoundaries returns the byte offsets at which each page section ends
func sectionBoundaries(content string) []int {
	starts := pageSectionStart.FindAllStringIndex(content, -1)
	boundaries := make([]int, 0, len(starts)+1)
	for _, s := range starts {
		if s[0] > 0 {
			boundaries = append(boundaries, s[0])
		}
	}
	return append(boundaries, len(content))
}
