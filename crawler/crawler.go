package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var log = logrus.New()

// SetLogger replaces the package logger, so callers can share level and formatting.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		log = l
	}
}

// Defaults applied by New to zero Config fields
const (
	// DefaultMaxPages is the page budget of a crawl
	DefaultMaxPages = 20
	// DefaultTimeout bounds a single page request
	DefaultTimeout = 10 * time.Second
	// DefaultDelay is the politeness gap between requests
	DefaultDelay = time.Second
	// DefaultMaxBodyBytes caps how much of a response body is read
	DefaultMaxBodyBytes = 5 << 20
	// DefaultUserAgent is a desktop Chrome user agent
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

var (
	// ErrInvalidURL is returned for empty input or a URL without a host
	ErrInvalidURL = errors.New("invalid website URL")
	// ErrUnsupportedContent marks a page whose body is not HTML
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// Config holds the crawl limits
type Config struct {
	// MaxPages is the number of successfully fetched pages after which the crawl stops
	MaxPages int

	// Timeout applies to each page request
	Timeout time.Duration

	// Delay is the minimum gap between two requests. Zero disables it.
	Delay time.Duration

	UserAgent string

	// RetryMax is the number of retries for transient (5xx, connection) failures
	RetryMax int

	MaxBodyBytes int64
}

// DefaultConfig returns the limits used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		MaxPages:     DefaultMaxPages,
		Timeout:      DefaultTimeout,
		Delay:        DefaultDelay,
		UserAgent:    DefaultUserAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// EventKind classifies crawl progress events
type EventKind string

const (
	EventStart EventKind = "start"
	EventPage  EventKind = "page"
	EventError EventKind = "error"
	EventDone  EventKind = "done"
)

// Event is emitted while crawling so that callers can show progress
type Event struct {
	Kind     EventKind `json:"kind"`
	Message  string    `json:"message"`
	URL      string    `json:"url,omitempty"`
	Crawled  int       `json:"crawled"`
	MaxPages int       `json:"max_pages"`
}

// Page is the cleaned text of a single crawled URL
type Page struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// PageError records a URL that could not be crawled
type PageError struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Result summarizes a finished crawl
type Result struct {
	BaseURL string
	Domain  string
	Pages   []Page
	Failed  []PageError
	Visited []string
}

// Crawler walks the internal pages of a single website breadth-first
type Crawler struct {
	baseURL string
	domain  string
	config  Config
	client  *retryablehttp.Client
	limiter *rate.Limiter

	queue   []string
	queued  map[string]bool
	visited map[string]bool
}

// NormalizeURL turns user input into an absolute http(s) URL, defaulting to https.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	return canonicalize(u), nil
}

// canonicalize drops the fragment and gives an empty path the root path,
// so the same page is not queued twice under different spellings.
func canonicalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

// New creates a crawler for baseURL. Zero values in config fall back to the defaults,
// except Delay and RetryMax where zero means disabled.
func New(baseURL string, config Config) (*Crawler, error) {
	normalized, err := NormalizeURL(baseURL)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(normalized)

	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.RetryMax < 0 {
		config.RetryMax = 0
	}

	client := retryablehttp.NewClient()
	client.RetryMax = config.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = config.Timeout
	client.Logger = log.WithField("domain", u.Host)

	var limiter *rate.Limiter
	if config.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(config.Delay), 1)
	}

	return &Crawler{
		baseURL: normalized,
		domain:  u.Host,
		config:  config,
		client:  client,
		limiter: limiter,
		queue:   []string{normalized},
		queued:  map[string]bool{normalized: true},
		visited: make(map[string]bool),
	}, nil
}

// BaseURL returns the normalized start URL
func (c *Crawler) BaseURL() string { return c.baseURL }

// Domain returns the host the crawl is restricted to
func (c *Crawler) Domain() string { return c.domain }

// MaxPages returns the effective page budget
func (c *Crawler) MaxPages() int { return c.config.MaxPages }

// Crawl fetches pages until the queue is empty or MaxPages pages were crawled.
// Each page is written to w as "[PAGE: <url>]\n<text>\n\n". Failed pages are
// reported through onEvent and do not count toward the budget.
// If ctx is cancelled the partial result is returned together with ctx.Err().
func (c *Crawler) Crawl(ctx context.Context, w io.Writer, onEvent func(Event)) (*Result, error) {
	emit := func(e Event) {
		e.MaxPages = c.config.MaxPages
		if onEvent != nil {
			onEvent(e)
		}
	}

	logger := log.WithField("url", c.baseURL)
	logger.Infof("Starting crawl (max %d pages)", c.config.MaxPages)
	emit(Event{
		Kind:    EventStart,
		Message: fmt.Sprintf("Starting crawl of %s", c.baseURL),
		URL:     c.baseURL,
	})

	result := &Result{BaseURL: c.baseURL, Domain: c.domain}
	crawled := 0

	for len(c.queue) > 0 && crawled < c.config.MaxPages {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		current := c.queue[0]
		c.queue = c.queue[1:]
		if c.visited[current] {
			continue
		}

		emit(Event{
			Kind:    EventPage,
			Message: fmt.Sprintf("Crawling %d/%d: %s", crawled+1, c.config.MaxPages, current),
			URL:     current,
			Crawled: crawled,
		})

		page, links, err := c.fetchPage(ctx, current)
		c.visited[current] = true
		result.Visited = append(result.Visited, current)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			logger.WithField("page", current).Warnf("Error crawling page: %v", err)
			result.Failed = append(result.Failed, PageError{URL: current, Error: err.Error()})
			emit(Event{
				Kind:    EventError,
				Message: fmt.Sprintf("Error crawling %s: %v", current, err),
				URL:     current,
				Crawled: crawled,
			})
			continue
		}

		if err := WritePage(w, page); err != nil {
			return result, fmt.Errorf("error writing page %s: %w", current, err)
		}
		result.Pages = append(result.Pages, page)
		crawled++

		for _, link := range links {
			if !c.queued[link] && !c.visited[link] {
				c.queued[link] = true
				c.queue = append(c.queue, link)
			}
		}
	}

	logger.Infof("Crawl completed with %d pages (%d failed)", crawled, len(result.Failed))
	emit(Event{
		Kind:    EventDone,
		Message: fmt.Sprintf("Crawl completed! Crawled %d pages.", crawled),
		Crawled: crawled,
	})
	return result, nil
}

// fetchPage downloads a page and returns its cleaned text and internal links
func (c *Crawler) fetchPage(ctx context.Context, pageURL string) (Page, []string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Page{}, nil, err
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, nil, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return Page{}, nil, fmt.Errorf("error reading body: %w", err)
	}

	if !isSupportedContent(resp.Header.Get("Content-Type"), body) {
		return Page{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, resp.Header.Get("Content-Type"))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, nil, fmt.Errorf("error parsing HTML: %w", err)
	}

	// The final URL after redirects is the base for relative links
	base := resp.Request.URL
	if base == nil {
		base, _ = url.Parse(pageURL)
	}
	links := extractLinks(doc, base, c.domain)

	return Page{URL: pageURL, Text: cleanDocumentText(doc)}, links, nil
}

// WritePage appends one page section to w and flushes w when it is buffered
func WritePage(w io.Writer, page Page) error {
	if _, err := fmt.Fprintf(w, "[PAGE: %s]\n%s\n\n", page.URL, page.Text); err != nil {
		return err
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
