package crawler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHomePage = `<html>
<head>
<title>Pori Jewelry</title>
<style>body { color: red; }</style>
</head>
<body>
<h1>Handmade rings</h1>
<p>Silver ring   $45</p>
<a href="/about">About</a>
<a href="contact#form">Contact</a>
<a href="/contact">Contact again</a>
<a href="https://www.instagram.com/pori">Instagram</a>
<a href="mailto:hello@pori.test">Mail</a>
<a href="/missing">Broken</a>
<script>var tracking = "ignore me";</script>
</body>
</html>`

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(testHomePage))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>\n<p>Family factory since 1990</p>\n<a href=\"/\">Home</a>\n</body></html>"))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>\n<p>hello@pori.test</p>\n<a href=\"/logo.png\">Logo</a>\n</body></html>"))
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "adds https scheme", input: "example.com", want: "https://example.com/"},
		{name: "keeps http scheme", input: "http://example.com/shop", want: "http://example.com/shop"},
		{name: "trims whitespace", input: "  https://example.com/a  ", want: "https://example.com/a"},
		{name: "drops fragment", input: "https://example.com/a#top", want: "https://example.com/a"},
		{name: "empty", input: "   ", wantErr: true},
		{name: "no host", input: "https://", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCleanText(t *testing.T) {
	text, err := CleanText(strings.NewReader(testHomePage))
	require.NoError(t, err)

	assert.Contains(t, text, "Pori Jewelry")
	assert.Contains(t, text, "Handmade rings")
	assert.Contains(t, text, "Silver ring $45")
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "\n")
	assert.NotContains(t, text, "  ")
}

func TestExtractLinks(t *testing.T) {
	links, err := ExtractLinks(strings.NewReader(testHomePage), "https://pori.test/")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://pori.test/about",
		"https://pori.test/contact",
		"https://pori.test/missing",
	}, links)
}

func TestCrawl(t *testing.T) {
	site := newTestSite(t)

	c, err := New(site.URL, Config{MaxPages: 10})
	require.NoError(t, err)

	var out bytes.Buffer
	var events []Event
	result, err := c.Crawl(context.Background(), &out, func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	var crawledURLs []string
	for _, p := range result.Pages {
		crawledURLs = append(crawledURLs, p.URL)
	}
	assert.Equal(t, []string{site.URL + "/", site.URL + "/about", site.URL + "/contact"}, crawledURLs)

	require.Len(t, result.Failed, 2)
	assert.Equal(t, site.URL+"/missing", result.Failed[0].URL)
	assert.Contains(t, result.Failed[0].Error, "404")
	assert.Equal(t, site.URL+"/logo.png", result.Failed[1].URL)
	assert.Contains(t, result.Failed[1].Error, ErrUnsupportedContent.Error())
	assert.Len(t, result.Visited, 5)

	assert.True(t, strings.HasPrefix(out.String(), "[PAGE: "+site.URL+"/]\n"))
	assert.Contains(t, out.String(), "[PAGE: "+site.URL+"/about]\nFamily factory since 1990 Home\n\n")

	require.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Kind)
	assert.Equal(t, "Starting crawl of "+site.URL+"/", events[0].Message)
	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Kind)
	assert.Equal(t, "Crawl completed! Crawled 3 pages.", last.Message)
	assert.Equal(t, 3, last.Crawled)

	var errorEvents int
	for _, e := range events {
		if e.Kind == EventError {
			errorEvents++
			assert.True(t, strings.HasPrefix(e.Message, "Error crawling "))
		}
		assert.Equal(t, 10, e.MaxPages)
	}
	assert.Equal(t, 2, errorEvents)
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	site := newTestSite(t)

	c, err := New(site.URL, Config{MaxPages: 2})
	require.NoError(t, err)

	var out bytes.Buffer
	result, err := c.Crawl(context.Background(), &out, nil)
	require.NoError(t, err)

	assert.Len(t, result.Pages, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "[PAGE: "))
}

func TestCrawlCancelled(t *testing.T) {
	site := newTestSite(t)

	c, err := New(site.URL, Config{MaxPages: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	result, err := c.Crawl(ctx, &out, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.Pages)
}

func TestNewAppliesDefaults(t *testing.T) {
	c, err := New("shop.example.com", Config{})
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com/", c.BaseURL())
	assert.Equal(t, "shop.example.com", c.Domain())
	assert.Equal(t, DefaultMaxPages, c.MaxPages())
	assert.Nil(t, c.limiter)
}

func TestParsePages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePage(&buf, Page{URL: "https://a.test/", Text: "Home page"}))
	require.NoError(t, WritePage(&buf, Page{URL: "https://a.test/about", Text: "About us"}))

	pages := ParsePages(buf.String())
	assert.Equal(t, []Page{
		{URL: "https://a.test/", Text: "Home page"},
		{URL: "https://a.test/about", Text: "About us"},
	}, pages)

	assert.Empty(t, ParsePages("no markers here"))
}
