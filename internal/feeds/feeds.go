// Package feeds retrieves and parses RSS/Atom feeds from configured sources.
package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsbrief/internal/core"
	"newsbrief/internal/dedup"
	"newsbrief/internal/logger"
)

// RSS represents an RSS feed structure.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Atom represents an Atom feed structure.
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// Channel represents an RSS channel.
type Channel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Items       []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item.
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// AtomLink represents an Atom link element.
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomEntry represents an Atom entry.
type AtomEntry struct {
	Title     string     `xml:"title"`
	Link      []AtomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

// Fetcher retrieves articles from feed sources.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxPerFeed  int
	concurrency int
}

// Options configures a Fetcher.
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	MaxPerFeed  int
	Concurrency int
}

// NewFetcher creates a feed fetcher with the given options.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "newsbrief/1.0"
	}
	if opts.MaxPerFeed <= 0 {
		opts.MaxPerFeed = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Fetcher{
		client:      &http.Client{Timeout: opts.Timeout},
		userAgent:   opts.UserAgent,
		maxPerFeed:  opts.MaxPerFeed,
		concurrency: opts.Concurrency,
	}
}

// FetchAll retrieves every source concurrently with a bounded worker pool.
// A failed source contributes zero articles and a warning but never aborts
// the batch. Article order is stable within a source; sources themselves are
// returned in configuration order.
func (f *Fetcher) FetchAll(ctx context.Context, sources []core.FeedSource) ([]core.Article, []core.FeedStat) {
	type result struct {
		index    int
		articles []core.Article
		stat     core.FeedStat
	}

	results := make([]result, len(sources))
	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		go func(i int, src core.FeedSource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			articles, err := f.FetchSource(ctx, src)
			stat := core.FeedStat{
				Source:   src.Name,
				Fetched:  len(articles),
				Duration: time.Since(start),
			}
			if err != nil {
				stat.Err = err.Error()
				logger.Warn("Feed source failed", "source", src.Name, "error", err.Error())
			}
			results[i] = result{index: i, articles: articles, stat: stat}
		}(i, src)
	}
	wg.Wait()

	// Merge per-worker results after the join; workers never share a slice.
	var all []core.Article
	stats := make([]core.FeedStat, 0, len(sources))
	for _, r := range results {
		all = append(all, r.articles...)
		stats = append(stats, r.stat)
	}
	return all, stats
}

// FetchSource retrieves and parses a single feed source. One attempt, no
// retries; persistent failures are reported to the caller.
func (f *Fetcher) FetchSource(ctx context.Context, src core.FeedSource) ([]core.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceUnavailable, src.Name, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceUnavailable, src.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", core.ErrSourceUnavailable, src.Name, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceUnavailable, src.Name, err)
	}

	articles, err := Parse(raw, src, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrSourceUnavailable, src.Name, err)
	}
	if len(articles) > f.maxPerFeed {
		articles = articles[:f.maxPerFeed]
	}
	return articles, nil
}

// Parse decodes feed bytes as RSS first, then Atom, and converts the entries
// into Articles attributed to the given source. fetchedAt is recorded on every
// article and doubles as the published-at fallback downstream.
func Parse(raw []byte, src core.FeedSource, fetchedAt time.Time) ([]core.Article, error) {
	var rss RSS
	if err := xml.Unmarshal(raw, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return fromRSS(rss, src, fetchedAt), nil
	}

	var atom Atom
	if err := xml.Unmarshal(raw, &atom); err == nil && len(atom.Entries) > 0 {
		return fromAtom(atom, src, fetchedAt), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func fromRSS(rss RSS, src core.FeedSource, fetchedAt time.Time) []core.Article {
	var articles []core.Article
	for _, item := range rss.Channel.Items {
		if item.Link == "" {
			continue
		}
		articles = append(articles, newArticle(src, item.Link, item.Title, item.Description, parseRSSDate(item.PubDate), fetchedAt))
	}
	return articles
}

func fromAtom(atom Atom, src core.FeedSource, fetchedAt time.Time) []core.Article {
	var articles []core.Article
	for _, entry := range atom.Entries {
		var link string
		for _, l := range entry.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if link == "" {
			continue
		}
		published := entry.Published
		if published == "" {
			published = entry.Updated
		}
		articles = append(articles, newArticle(src, link, entry.Title, entry.Summary, parseAtomDate(published), fetchedAt))
	}
	return articles
}

func newArticle(src core.FeedSource, link, title, summary string, published, fetchedAt time.Time) core.Article {
	normalized := dedup.NormalizeURL(link)
	return core.Article{
		ID:            generateArticleID(normalized),
		URL:           link,
		NormalizedURL: normalized,
		Title:         strings.TrimSpace(title),
		SourceName:    src.Name,
		Category:      src.Category,
		Priority:      src.Priority,
		PublishedAt:   published,
		FetchedAt:     fetchedAt,
		Summary:       strings.TrimSpace(summary),
	}
}

// generateArticleID creates a deterministic ID from the normalized URL, so the
// same story keeps the same ID across fetch runs.
func generateArticleID(normalizedURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(normalizedURL)).String()
}

// parseRSSDate parses common RSS date formats. Returns the zero time when the
// value cannot be parsed; downstream treats that as "published unknown".
func parseRSSDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, strings.TrimSpace(dateStr)); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

// parseAtomDate parses Atom date formats (RFC3339 with RSS fallbacks).
func parseAtomDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(dateStr)); err == nil {
		return t.UTC()
	}

	return parseRSSDate(dateStr)
}

// SortStats orders feed stats by source name for stable reporting.
func SortStats(stats []core.FeedStat) {
	sort.Slice(stats, func(i, j int) bool { return stats[i].Source < stats[j].Source })
}
