// Package fetch retrieves full article text for the enrichment stage.
// Fetching is best-effort: an article whose page cannot be retrieved proceeds
// with only its feed summary.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"newsbrief/internal/core"
	"newsbrief/internal/logger"
)

const (
	// maxBodyChars caps the extracted text per article so prompts stay
	// bounded.
	maxBodyChars = 10000
	// maxDownloadBytes caps the raw page download.
	maxDownloadBytes = 4 << 20
)

// Enricher fetches and extracts article bodies.
type Enricher struct {
	client      *http.Client
	userAgent   string
	concurrency int
}

// NewEnricher creates an enricher with the given timeout and fan-out width.
func NewEnricher(timeout time.Duration, userAgent string, concurrency int) *Enricher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "newsbrief/1.0"
	}
	if concurrency <= 0 {
		concurrency = 6
	}
	return &Enricher{
		client:      &http.Client{Timeout: timeout},
		userAgent:   userAgent,
		concurrency: concurrency,
	}
}

// EnrichAll fetches full text for every article concurrently and returns the
// articles with Content populated where retrieval succeeded. Input order is
// preserved; failures leave Content empty.
func (e *Enricher) EnrichAll(ctx context.Context, articles []core.Article) []core.Article {
	enriched := make([]core.Article, len(articles))
	copy(enriched, articles)

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i := range enriched {
		if enriched[i].URL == "" {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			text, err := e.PageText(ctx, enriched[i].URL)
			if err != nil {
				logger.Debug("Full-text fetch failed", "url", enriched[i].URL, "error", err.Error())
				return
			}
			enriched[i].Content = text
		}(i)
	}
	wg.Wait()

	return enriched
}

// PageText fetches a URL and returns readable plain text extracted from the
// HTML, capped at maxBodyChars.
func (e *Enricher) PageText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read page body: %w", err)
	}

	return ExtractText(raw, pageURL)
}

// ExtractText pulls the main readable text out of an HTML document. It tries
// readability extraction first and falls back to stripping tags from the
// body.
func ExtractText(raw []byte, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		parsedURL = &url.URL{}
	}

	if article, err := readability.FromReader(bytes.NewReader(raw), parsedURL); err == nil {
		if text := collapseWhitespace(article.TextContent); text != "" {
			return capText(text), nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, nav, header, footer").Remove()
	text := collapseWhitespace(doc.Find("body").Text())
	if text == "" {
		return "", fmt.Errorf("no readable text in page")
	}
	return capText(text), nil
}

// ExtractTitle pulls the page title, preferring the title tag, then the
// OpenGraph title, then the first h1.
func ExtractTitle(raw []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); ogTitle != "" {
		return strings.TrimSpace(ogTitle)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// capText truncates on a rune boundary so the cap never leaves a partial
// UTF-8 sequence at the end.
func capText(text string) string {
	if len(text) <= maxBodyChars {
		return text
	}
	cut := maxBodyChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
