package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	goodColor    = color.New(color.FgGreen, color.Bold)
	badColor     = color.New(color.FgRed, color.Bold)
	mutedColor   = color.New(color.Faint)
)

// priorityColor picks the color of a priority band
func priorityColor(priority string) *color.Color {
	switch priority {
	case PriorityHigh:
		return goodColor
	case PriorityMedium:
		return color.New(color.FgYellow, color.Bold)
	case PriorityLow:
		return color.New(color.FgHiYellow)
	default:
		return badColor
	}
}

// writeReport prints a human readable lead score
func writeReport(w io.Writer, url string, score *LeadScore) {
	rule := strings.Repeat("=", 60)
	thin := strings.Repeat("-", 60)

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	headingColor.Fprintln(w, "LEAD SCORING RESULTS")
	if url != "" {
		fmt.Fprintf(w, "Website: %s\n", url)
	}
	fmt.Fprintln(w, rule)

	fmt.Fprintf(w, "Total Score: %d/100\n", score.TotalScore)
	if score.Disqualified {
		badColor.Fprintln(w, "Status: ❌ DISQUALIFIED")
		if len(score.DisqualificationReasons) > 0 {
			fmt.Fprintln(w, "Disqualification Reasons:")
			for _, reason := range score.DisqualificationReasons {
				fmt.Fprintf(w, "  • %s\n", reason)
			}
		}
	} else {
		goodColor.Fprintln(w, "Status: ✅ QUALIFIED")
	}
	fmt.Fprint(w, "Priority: ")
	priorityColor(score.Priority()).Fprintln(w, strings.ToUpper(score.Priority()))

	fmt.Fprintln(w)
	fmt.Fprintln(w, thin)
	headingColor.Fprintln(w, "DETAILED SCORES")
	fmt.Fprintln(w, thin)

	s := score.Scores
	fmt.Fprintf(w, "💰 Price Point (< $200): %d/100\n", s.Price.Score)
	if len(s.Price.Examples) > 0 {
		fmt.Fprintln(w, "  Examples:")
		for _, e := range s.Price.Examples {
			fmt.Fprintf(w, "    • %s: %s", e.Item, e.Price)
			if e.Page != "" {
				mutedColor.Fprintf(w, " (%s)", e.Page)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "\n🛒 Multi-Channel Selling: %d/100\n", s.Channels.Score)
	writeList(w, "Found channels", s.Channels.FoundChannels)
	writeReferences(w, s.Channels.PageReferences)

	fmt.Fprintf(w, "\n📞 Contact Info: %d/100\n", s.Contact.Score)
	writeList(w, "Found", s.Contact.Found)
	writeReferences(w, s.Contact.PageReferences)

	fmt.Fprintf(w, "\n🏭 Vertical Integration: %d/100\n", s.VerticalIntegration.Score)
	writeEvidence(w, s.VerticalIntegration)

	fmt.Fprintf(w, "\n📱 Recent Social Activity: %d/100\n", s.Social.Score)
	writeEvidence(w, s.Social)

	if score.Summary != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, thin)
		headingColor.Fprintln(w, "SUMMARY")
		fmt.Fprintln(w, thin)
		fmt.Fprintln(w, score.Summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
}

func writeList(w io.Writer, label string, items []string) {
	if len(items) > 0 {
		fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(items, ", "))
	}
}

func writeReferences(w io.Writer, refs []string) {
	if len(refs) > 0 {
		mutedColor.Fprintf(w, "  Pages: %s\n", strings.Join(refs, ", "))
	}
}

func writeEvidence(w io.Writer, e EvidenceScore) {
	if e.Evidence != "" {
		fmt.Fprintf(w, "  Evidence: %s\n", e.Evidence)
	}
	writeReferences(w, e.PageReferences)
}

// writeBatchSummary prints one line per website of a batch
func writeBatchSummary(w io.Writer, summary *BatchSummary) {
	headingColor.Fprintf(w, "\nBatch finished: %d analyzed, %d skipped, %d failed\n", summary.Processed, summary.Skipped, summary.Failed)
	for _, r := range summary.Results {
		switch {
		case r.Skipped:
			mutedColor.Fprintf(w, "  - %s: skipped (already analyzed)\n", r.URL)
		case r.Error != "":
			badColor.Fprintf(w, "  ✗ %s: %s\n", r.URL, r.Error)
		case r.Analysis != nil:
			fmt.Fprintf(w, "  ✓ %s: %d/100 ", r.URL, r.Analysis.TotalScore)
			priorityColor(r.Analysis.Priority).Fprintln(w, strings.ToUpper(r.Analysis.Priority))
		}
	}
}
