package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNoContent = errors.New("no website content to analyze")

var defaultLeadScoreTemplate = `You are a lead scoring assistant for Whatnot jewelry sellers. Based on the scraped website content below, return a structured JSON object that helps decide whether this site is a good fit for Whatnot.

Only use information explicitly present in the text. Do not guess or make assumptions. Use evidence from the pages.

Each page starts with a [PAGE: URL] line so you can reference where the data came from.

---

### Criteria (score each 0-100)

1. Price Point (< $200), MOST IMPORTANT
   - Items under $200 are the strongest indicator for Whatnot.
   - List up to 3 items under $200 with their prices and the page URL where each price was found.
   - Scoring: 90-100 if multiple items are under $100, 70-89 if items are under $200, 50-69 if items are under $500.

2. Multi-Channel Selling
   - Channels checked: Temu, Shein, Alibaba, Amazon, Etsy, eBay, Instagram, Facebook, Poshmark, TikTok, D2C Website, Shopify.
   - Amazon, Etsy, eBay, Instagram, D2C Website and Shopify are stronger signals.
   - Reference the page URLs where channels were found.

3. Contact Info Present
   - Email, phone number or social media handle. Bonus if linked to a decision-maker.
   - List the actual email addresses and phone numbers found.

4. Vertical Integration
   - Evidence: mentions of a factory, wholesaler, Faire or Etsy Wholesale.
   - Reference the page URLs where evidence was found.

5. Recent Social Media Activity
   - Any Instagram or Facebook post from 2023-2025.
   - Reference the page URLs where social media was found.

### Guidelines
- Price point is the most important factor.
- Channels: award points for any social media presence, website or e-commerce platform.
- Contact: give full points for any contact information found.
- Vertical integration: award points for business-related terms or wholesale mentions.
- Social: give points for any social media presence, even without recent posts.
- Do NOT disqualify for diamonds, engagement rings, custom, handcrafted or handmade items. These are indicators only.

### Only disqualify if
- All items are priced over $500
- The site looks completely outdated or broken
- There is no contact information whatsoever

### Total score (0-100)
The total score is your overall assessment and NOT a sum of the criteria. Weight the price point most heavily (about 40% of the decision) and consider the overall business model and fit for Whatnot.

### Reply with ONLY a valid JSON object in this format

{
  "total_score": 85,
  "disqualified": false,
  "disqualification_reasons": [],
  "scores": {
    "price": {
      "score": 95,
      "examples": [
        {"item": "Silver heart necklace", "price": "$45", "page": "https://example.com/necklaces"}
      ]
    },
    "channels": {
      "score": 80,
      "found_channels": ["Instagram", "Facebook", "D2C Website"],
      "page_references": ["https://example.com/"]
    },
    "contact": {
      "score": 90,
      "found": ["info@example.com", "+1 (555) 123-4567"],
      "page_references": ["https://example.com/contact"]
    },
    "vertical_integration": {
      "score": 75,
      "evidence": "Mentions wholesale orders",
      "page_references": ["https://example.com/about"]
    },
    "social": {
      "score": 85,
      "evidence": "Active Instagram presence",
      "page_references": ["https://example.com/"]
    }
  },
  "summary": "One paragraph explaining the fit."
}

---

### Website content to analyze

{{.Content}}
`

// buildLeadScorePrompt renders the scoring template, truncating the content to the token limit
func buildLeadScorePrompt(content string) (string, error) {
	templateMutex.RLock()
	defer templateMutex.RUnlock()

	availableTokens, err := getAvailableTokensForContent(leadScoreTemplate, map[string]interface{}{})
	if err != nil {
		return "", fmt.Errorf("error calculating available tokens: %w", err)
	}
	truncated, err := truncateContentByTokens(content, availableTokens)
	if err != nil {
		return "", fmt.Errorf("error truncating content: %w", err)
	}

	var promptBuffer bytes.Buffer
	if err := leadScoreTemplate.Execute(&promptBuffer, map[string]interface{}{
		"Content": truncated,
	}); err != nil {
		return "", fmt.Errorf("error executing lead score template: %w", err)
	}
	return promptBuffer.String(), nil
}

// scoreWebsite evaluates crawled website content. In test mode no model is called
// and the sample score is returned.
func (app *App) scoreWebsite(ctx context.Context, content string) (*LeadScore, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoContent
	}

	if app.TestMode {
		log.Warn("Test mode: returning sample lead score, no API call made")
		return sampleLeadScore(), nil
	}

	prompt, err := buildLeadScorePrompt(content)
	if err != nil {
		return nil, err
	}
	log.Debugf("Lead score prompt: %s", prompt)

	response, err := app.callLLMWithStructuredOutput(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("error getting response from LLM: %w", err)
	}

	score, err := parseLeadScore(response)
	if err != nil {
		log.Errorf("Could not parse model response: %v. Raw response: %s", err, response)
		return nil, err
	}
	return score, nil
}

// sampleLeadScore is shown while no API key is configured
func sampleLeadScore() *LeadScore {
	return &LeadScore{
		TotalScore:              85,
		Disqualified:            false,
		DisqualificationReasons: []string{},
		Scores: CriteriaScores{
			Price: PriceScore{
				Score: 90,
				Examples: []PriceExample{
					{Item: "Sterling Silver Necklace", Price: "$45", Page: "https://example.com/necklaces"},
					{Item: "Gold-plated Studs", Price: "$35", Page: "https://example.com/earrings"},
				},
			},
			Channels: ChannelScore{
				Score:          90,
				FoundChannels:  []string{"Instagram", "Facebook", "D2C Website"},
				PageReferences: []string{"https://example.com/", "https://example.com/contact"},
			},
			Contact: ContactScore{
				Score:          100,
				Found:          []string{"info@example.com", "+1 (555) 123-4567", "Instagram: @example"},
				PageReferences: []string{"https://example.com/contact"},
			},
			VerticalIntegration: EvidenceScore{
				Score:          75,
				Evidence:       "Mentions wholesale and business operations",
				PageReferences: []string{"https://example.com/about"},
			},
			Social: EvidenceScore{
				Score:          70,
				Evidence:       "Active Instagram and Facebook presence found",
				PageReferences: []string{"https://example.com/", "https://example.com/contact"},
			},
		},
		Summary: "This site is an excellent fit. It sells affordable jewelry with strong social media presence, provides clear contact information, and operates as a direct-to-consumer business.",
	}
}
