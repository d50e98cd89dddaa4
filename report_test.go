package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func disableColor(t *testing.T) {
	t.Helper()
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })
}

func TestWriteReport(t *testing.T) {
	disableColor(t)

	var buf bytes.Buffer
	writeReport(&buf, "https://example.com/", sampleLeadScore())
	out := buf.String()

	assert.Contains(t, out, "LEAD SCORING RESULTS")
	assert.Contains(t, out, "Website: https://example.com/")
	assert.Contains(t, out, "Total Score: 85/100")
	assert.Contains(t, out, "Status: ✅ QUALIFIED")
	assert.Contains(t, out, "Priority: HIGH")
	assert.Contains(t, out, "    • Sterling Silver Necklace: $45 (https://example.com/necklaces)")
	assert.Contains(t, out, "  Found channels: Instagram, Facebook, D2C Website")
	assert.Contains(t, out, "📱 Recent Social Activity: 70/100")
	assert.Contains(t, out, "SUMMARY")
	assert.NotContains(t, out, "\x1b[", "no escape codes without a terminal")
}

func TestWriteReportDisqualified(t *testing.T) {
	disableColor(t)

	score := &LeadScore{
		TotalScore:              15,
		Disqualified:            true,
		DisqualificationReasons: []string{"All items are priced over $500"},
	}
	var buf bytes.Buffer
	writeReport(&buf, "", score)
	out := buf.String()

	assert.Contains(t, out, "Status: ❌ DISQUALIFIED")
	assert.Contains(t, out, "  • All items are priced over $500")
	assert.Contains(t, out, "Priority: DISQUALIFIED")
	assert.NotContains(t, out, "Website:")
	assert.NotContains(t, out, "Examples:")
	assert.NotContains(t, out, "SUMMARY")
}

func TestWriteBatchSummary(t *testing.T) {
	disableColor(t)

	summary := &BatchSummary{
		Processed: 1,
		Skipped:   1,
		Failed:    1,
		Results: []BatchResult{
			{URL: "https://a.test/", Analysis: &LeadAnalysis{TotalScore: 72, Priority: PriorityMedium}},
			{URL: "https://b.test/", Skipped: true},
			{URL: "https://c.test/", Error: "unexpected status 500"},
		},
	}
	var buf bytes.Buffer
	writeBatchSummary(&buf, summary)
	out := buf.String()

	assert.Contains(t, out, "Batch finished: 1 analyzed, 1 skipped, 1 failed")
	assert.Contains(t, out, "  ✓ https://a.test/: 72/100 MEDIUM")
	assert.Contains(t, out, "  - https://b.test/: skipped (already analyzed)")
	assert.Contains(t, out, "  ✗ https://c.test/: unexpected status 500")
}
