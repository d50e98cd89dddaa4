package crawler

import (
	"io"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

// CleanText extracts the visible text of an HTML document as a single line.
func CleanText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	return cleanDocumentText(doc), nil
}

// cleanDocumentText removes script and style elements, then collapses the text:
// every line is trimmed, split on double spaces, and the non-empty chunks are
// joined with a single space.
func cleanDocumentText(doc *goquery.Document) string {
	doc.Find("script, style").Remove()

	lines := strings.FieldsFunc(doc.Text(), func(r rune) bool {
		return r == '\n' || r == '\r' || r == '\v' || r == '\f' || r == '\u0085' || r == '\u2028' || r == '\u2029'
	})

	chunks := make([]string, 0, len(lines))
	for _, line := range lines {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, " ")
}

// ExtractLinks returns the internal links of an HTML document, resolved against pageURL.
func ExtractLinks(r io.Reader, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return extractLinks(doc, base, base.Host), nil
}

// extractLinks resolves every a[href] against base and keeps the http(s) links on domain.
// The result has no duplicates and keeps document order.
func extractLinks(doc *goquery.Document, base *url.URL, domain string) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if !isInternal(resolved, domain) {
			return
		}
		link := canonicalize(resolved)
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})

	return links
}

func isInternal(u *url.URL, domain string) bool {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, domain)
}

var supportedMIMEs = []string{"text/html", "application/xhtml+xml", "text/plain"}

// isSupportedContent trusts an explicit HTML Content-Type and otherwise sniffs the body
func isSupportedContent(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
			return true
		}
	}
	detected := mimetype.Detect(body)
	for _, m := range supportedMIMEs {
		if detected.Is(m) {
			return true
		}
	}
	return false
}

var pageMarker = regexp.MustCompile(`(?m)^\[PAGE: (.+)\]$`)

// ParsePages splits a website context document back into its pages.
// Text before the first marker is ignored.
func ParsePages(content string) []Page {
	matches := pageMarker.FindAllStringSubmatchIndex(content, -1)
	pages := make([]Page, 0, len(matches))
	for i, m := range matches {
		start := m[1]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		pages = append(pages, Page{
			URL:  content[m[2]:m[3]],
			Text: strings.TrimSpace(content[start:end]),
		})
	}
	return pages
}
