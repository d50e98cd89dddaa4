package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"lead-qualifier/crawler"
)

// BatchResult is the outcome of qualifying one website of a batch
type BatchResult struct {
	URL      string        `json:"url"`
	Analysis *LeadAnalysis `json:"analysis,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// BatchSummary collects the results of a batch in input order
type BatchSummary struct {
	Results   []BatchResult `json:"results"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
}

// parseWebsitesList reads one URL per line. Blank lines and # comments are
// ignored and duplicates (after normalization) are dropped, keeping the first.
func parseWebsitesList(r io.Reader) ([]string, error) {
	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		normalized, err := crawler.NormalizeURL(line)
		if err != nil {
			log.Warnf("Skipping line %d of websites list: %v", lineNo, err)
			continue
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		urls = append(urls, normalized)
	}
	return urls, scanner.Err()
}

// readWebsitesList loads the websites file
func readWebsitesList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening websites file: %w", err)
	}
	defer f.Close()
	return parseWebsitesList(f)
}

// runBatch analyzes the given websites with at most batchConcurrency analyses in flight.
// A failing website does not stop the others; all failures are joined into the returned error.
func (app *App) runBatch(ctx context.Context, urls []string, skipAnalyzed bool) (*BatchSummary, error) {
	analyzed := map[string]bool{}
	if skipAnalyzed && app.Database != nil {
		var err error
		analyzed, err = GetAnalyzedURLs(app.Database)
		if err != nil {
			return nil, fmt.Errorf("error fetching analyzed websites: %w", err)
		}
	}

	summary := &BatchSummary{Results: make([]BatchResult, len(urls))}
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(batchConcurrency, 1))

	for i, u := range urls {
		summary.Results[i].URL = u
		if normalized, err := crawler.NormalizeURL(u); err == nil && analyzed[normalized] {
			log.Debugf("Skipping %s, it was already analyzed", normalized)
			summary.Results[i].Skipped = true
			summary.Skipped++
			continue
		}

		g.Go(func() error {
			logger := websiteLogger(u)
			logger.Info("Processing website for lead qualification")

			record, err := app.analyzeWebsite(gctx, u, 0, nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Errorf("Lead qualification failed: %v", err)
				summary.Results[i].Error = err.Error()
				summary.Failed++
				errs = append(errs, fmt.Errorf("website %s: %w", u, err))
				return nil
			}
			summary.Results[i].Analysis = record
			summary.Processed++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return summary, fmt.Errorf("one or more errors occurred: %w", errors.Join(errs...))
	}
	return summary, nil
}

// enqueueWebsites submits a background job per URL. With skipAnalyzed, URLs
// that already have an analysis are left out and counted as skipped.
func (app *App) enqueueWebsites(urls []string, skipAnalyzed bool) (jobIDs []string, skipped int, err error) {
	analyzed := map[string]bool{}
	if skipAnalyzed {
		analyzed, err = GetAnalyzedURLs(app.Database)
		if err != nil {
			return nil, 0, fmt.Errorf("error fetching analyzed websites: %w", err)
		}
	}

	var errs []error
	for _, u := range urls {
		if normalized, nerr := crawler.NormalizeURL(u); nerr == nil && analyzed[normalized] {
			skipped++
			continue
		}
		job, err := submitJob(u, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("website %s: %w", u, err))
			if errors.Is(err, ErrQueueFull) {
				break
			}
			continue
		}
		jobIDs = append(jobIDs, job.ID)
	}
	return jobIDs, skipped, errors.Join(errs...)
}

// enqueueUnanalyzedWebsites queues a job for each website of the list without an analysis
func (app *App) enqueueUnanalyzedWebsites(path string) (int, error) {
	urls, err := readWebsitesList(path)
	if err != nil {
		return 0, err
	}
	jobIDs, _, err := app.enqueueWebsites(urls, true)
	return len(jobIDs), err
}

// startBatchSchedule runs enqueueUnanalyzedWebsites on the given cron schedule until ctx is done
func startBatchSchedule(ctx context.Context, app *App, schedule, path string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		log.Infof("[Cron] Queueing websites from %s", path)
		queued, err := app.enqueueUnanalyzedWebsites(path)
		if err != nil {
			log.Errorf("[Cron] Error queueing websites: %v", err)
		}
		log.Infof("[Cron] Queued %d websites", queued)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid batch schedule %q: %w", schedule, err)
	}

	c.Start()
	log.Infof("[Cron] Batch schedule started (%s)", schedule)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		log.Infoln("[Cron] Batch schedule stopped")
	}()
	return c, nil
}
