package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Priority bands shown next to the total score
const (
	PriorityDisqualified = "disqualified"
	PriorityHigh         = "high"
	PriorityMedium       = "medium"
	PriorityLow          = "low"
)

// Score is a 0-100 rating. Models sometimes answer with floats or quoted
// numbers, so decoding accepts both and clamps into range.
type Score int

func (s *Score) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid score %s: %w", string(data), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid score %s: not a finite number", string(data))
	}
	*s = clampScore(f)
	return nil
}

// clampScore bounds f to 0..100 before rounding, so huge values cannot overflow int
func clampScore(f float64) Score {
	return Score(math.Round(math.Max(0, math.Min(100, f))))
}

// PriceExample is an item priced under the threshold that the model found on a page
type PriceExample struct {
	Item  string `json:"item"`
	Price string `json:"price"`
	Page  string `json:"page,omitempty"`
}

type PriceScore struct {
	Score    Score          `json:"score"`
	Examples []PriceExample `json:"examples"`
}

type ChannelScore struct {
	Score          Score    `json:"score"`
	FoundChannels  []string `json:"found_channels"`
	PageReferences []string `json:"page_references"`
}

type ContactScore struct {
	Score          Score    `json:"score"`
	Found          []string `json:"found"`
	PageReferences []string `json:"page_references"`
}

// EvidenceScore is used by criteria that are backed by a free-text justification
type EvidenceScore struct {
	Score          Score    `json:"score"`
	Evidence       string   `json:"evidence"`
	PageReferences []string `json:"page_references"`
}

// CriteriaScores holds the five lead qualification criteria
type CriteriaScores struct {
	Price               PriceScore    `json:"price"`
	Channels            ChannelScore  `json:"channels"`
	Contact             ContactScore  `json:"contact"`
	VerticalIntegration EvidenceScore `json:"vertical_integration"`
	Social              EvidenceScore `json:"social"`
}

// LeadScore is the structured evaluation returned by the model.
// TotalScore is an overall judgement, not the sum of the criteria.
type LeadScore struct {
	TotalScore              Score          `json:"total_score"`
	Disqualified            bool           `json:"disqualified"`
	DisqualificationReasons []string       `json:"disqualification_reasons"`
	Scores                  CriteriaScores `json:"scores"`
	Summary                 string         `json:"summary"`
}

// Priority maps the score to the band used for follow-up
func (s *LeadScore) Priority() string {
	switch {
	case s.Disqualified:
		return PriorityDisqualified
	case s.TotalScore >= 80:
		return PriorityHigh
	case s.TotalScore >= 60:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// MarshalIndent renders the score the way it is saved and downloaded
func (s *LeadScore) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// AnalyzeRequest is the request payload for /api/analyze
type AnalyzeRequest struct {
	URL      string `json:"url" binding:"required"`
	MaxPages int    `json:"max_pages"`
}

// BatchRequest is the request payload for /api/batch.
// When URLs is empty the configured websites file is used.
type BatchRequest struct {
	URLs         []string `json:"urls"`
	SkipAnalyzed bool     `json:"skip_analyzed"`
}

// Settings are the user adjustable defaults persisted in config/settings.json
type Settings struct {
	DefaultMaxPages int `json:"default_max_pages"`
}
