package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lead-qualifier/crawler"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "lead-qualifier",
		Short:        "Qualify jewelry websites as live-shopping leads",
		Long:         "lead-qualifier crawls e-commerce websites, scores them with an LLM against the lead criteria and serves the results through a web UI.",
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			loadEnvironment()
		},
	}

	serve := newServeCmd()
	root.RunE = serve.RunE

	root.AddCommand(
		serve,
		newCrawlCmd(),
		newScoreCmd(),
		newAnalyzeCmd(),
		newBatchCmd(),
	)
	return root
}

// printEvents writes crawl progress messages to w
func printEvents(w io.Writer) func(crawler.Event) {
	return func(e crawler.Event) {
		if e.Kind == crawler.EventError {
			badColor.Fprintln(w, e.Message)
			return
		}
		fmt.Fprintln(w, e.Message)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI, the API and the background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx)
			if err != nil {
				return err
			}

			startWorkerPool(app, max(batchConcurrency, 1))

			if batchSchedule != "" {
				if _, err := startBatchSchedule(ctx, app, batchSchedule, websitesFile); err != nil {
					return err
				}
			}

			srv := &http.Server{
				Addr:              listenAddress,
				Handler:           app.newRouter(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("Server started on %s", listenAddress)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("failed to run server: %w", err)
			case <-ctx.Done():
			}

			log.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newCrawlCmd() *cobra.Command {
	var (
		maxPages int
		output   string
	)

	cmd := &cobra.Command{
		Use:     "crawl <website-url>",
		Short:   "Crawl a website and save its text for scoring",
		Example: "  lead-qualifier crawl https://example.com --max-pages 10",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loadSettings()
			out := cmd.OutOrStdout()

			config := crawlConfig
			config.MaxPages = clampMaxPages(maxPages)
			c, err := crawler.New(args[0], config)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Domain: %s\n", c.Domain())
			fmt.Fprintf(out, "Max pages: %d\n", c.MaxPages())
			fmt.Fprintln(out, strings.Repeat("-", 50))

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("error creating %s: %w", output, err)
			}
			defer f.Close()
			bw := bufio.NewWriter(f)

			result, crawlErr := c.Crawl(cmd.Context(), bw, printEvents(out))
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("error writing %s: %w", output, err)
			}
			if crawlErr != nil {
				if errors.Is(crawlErr, context.Canceled) {
					fmt.Fprintf(out, "\nCrawl interrupted, %d pages saved to %s\n", len(result.Pages), output)
				}
				return crawlErr
			}

			fmt.Fprintf(out, "Content saved to %s\n", output)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to crawl (5-50, default from settings)")
	cmd.Flags().StringVarP(&output, "output", "o", websiteContextFile, "file the crawled text is written to")
	return cmd
}

// readWebsiteContext loads a crawl output file for scoring
func readWebsiteContext(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%s not found, run the crawl command first to scrape a website", path)
	}
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("%s is empty, run the crawl command first to scrape a website", path)
	}
	return string(data), nil
}

// saveScore writes the indented lead score to path
func saveScore(path string, score *LeadScore) error {
	data, err := score.MarshalIndent()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func newScoreCmd() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score previously crawled website text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content, err := readWebsiteContext(input)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Analyzing website content...")
			fmt.Fprintln(out, strings.Repeat("-", 50))

			score, err := app.scoreWebsite(cmd.Context(), content)
			if err != nil {
				return fmt.Errorf("failed to evaluate website: %w", err)
			}

			url := ""
			if pages := crawler.ParsePages(content); len(pages) > 0 {
				url = pages[0].URL
			}
			writeReport(out, url, score)

			if err := saveScore(output, score); err != nil {
				return fmt.Errorf("error saving results: %w", err)
			}
			fmt.Fprintf(out, "Results saved to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", websiteContextFile, "crawled text to score")
	cmd.Flags().StringVarP(&output, "output", "o", scoringResultsFile, "file the JSON result is written to")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		maxPages      int
		output        string
		contextOutput string
	)

	cmd := &cobra.Command{
		Use:   "analyze <website-url>",
		Short: "Crawl and score a website in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			record, err := app.analyzeWebsite(cmd.Context(), args[0], maxPages, printEvents(out))
			if err != nil {
				return err
			}

			score, err := record.Result()
			if err != nil {
				return err
			}
			writeReport(out, record.URL, score)

			if contextOutput != "" {
				if err := os.WriteFile(contextOutput, []byte(record.WebsiteContext), 0644); err != nil {
					return fmt.Errorf("error saving website context: %w", err)
				}
			}
			if err := saveScore(output, score); err != nil {
				return fmt.Errorf("error saving results: %w", err)
			}
			fmt.Fprintf(out, "Results saved to %s (analysis #%d)\n", output, record.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to crawl (5-50, default from settings)")
	cmd.Flags().StringVarP(&output, "output", "o", scoringResultsFile, "file the JSON result is written to")
	cmd.Flags().StringVar(&contextOutput, "context-output", websiteContextFile, "file the crawled text is written to, empty to skip")
	return cmd
}

func newBatchCmd() *cobra.Command {
	var (
		file         string
		skipAnalyzed bool
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Qualify every website of the websites list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = websitesFile
			}
			urls, err := readWebsitesList(file)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("%s does not list any websites", file)
			}

			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Qualifying %d websites from %s\n", len(urls), file)
			summary, err := app.runBatch(cmd.Context(), urls, skipAnalyzed)
			if summary != nil {
				writeBatchSummary(out, summary)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "websites list, one URL per line (default WEBSITES_FILE or websites.txt)")
	cmd.Flags().BoolVar(&skipAnalyzed, "skip-analyzed", true, "skip websites that already have an analysis")
	return cmd
}
