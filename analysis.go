package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"lead-qualifier/crawler"
)

// EventScoring is emitted once the crawl is done and the model is evaluating the content
const EventScoring crawler.EventKind = "scoring"

var slugReplacer = strings.NewReplacer("://", "_", "/", "_")

// urlSlug turns a URL into a string usable in a file name
func urlSlug(u string) string {
	return slugReplacer.Replace(u)
}

func websiteLogger(url string) *logrus.Entry {
	return log.WithField("url", url)
}

// crawlWebsite crawls rawURL with the app's crawl limits and returns the context document
func (app *App) crawlWebsite(ctx context.Context, rawURL string, maxPages int, onEvent func(crawler.Event)) (string, *crawler.Result, error) {
	config := app.Crawl
	config.MaxPages = clampMaxPages(maxPages)

	c, err := crawler.New(rawURL, config)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	result, err := c.Crawl(ctx, &buf, onEvent)
	if err != nil {
		return buf.String(), result, fmt.Errorf("error crawling %s: %w", c.BaseURL(), err)
	}
	return buf.String(), result, nil
}

// analyzeWebsite crawls a website, scores the crawled text and stores the analysis
func (app *App) analyzeWebsite(ctx context.Context, rawURL string, maxPages int, onEvent func(crawler.Event)) (*LeadAnalysis, error) {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	logger := websiteLogger(normalized)

	content, result, err := app.crawlWebsite(ctx, normalized, maxPages, onEvent)
	if err != nil {
		return nil, err
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("%w: none of the %d visited pages of %s could be crawled", ErrNoContent, len(result.Visited), normalized)
	}

	if onEvent != nil {
		onEvent(crawler.Event{
			Kind:    EventScoring,
			Message: "Analyzing website content with AI...",
			URL:     normalized,
			Crawled: len(result.Pages),
		})
	}
	logger.Infof("Scoring %d crawled pages", len(result.Pages))

	score, err := app.scoreWebsite(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("error scoring %s: %w", normalized, err)
	}

	resultJSON, err := score.MarshalIndent()
	if err != nil {
		return nil, fmt.Errorf("error encoding lead score: %w", err)
	}

	record := &LeadAnalysis{
		URL:            normalized,
		TotalScore:     int(score.TotalScore),
		Disqualified:   score.Disqualified,
		Priority:       score.Priority(),
		PagesCrawled:   len(result.Pages),
		PagesFailed:    len(result.Failed),
		TestMode:       app.TestMode,
		ResultJSON:     string(resultJSON),
		WebsiteContext: content,
	}
	if app.Database != nil {
		if err := InsertLeadAnalysis(app.Database, record); err != nil {
			return nil, fmt.Errorf("error saving analysis: %w", err)
		}
	}

	logger.WithField("priority", record.Priority).Infof("Analysis completed with total score %d", record.TotalScore)
	return record, nil
}
