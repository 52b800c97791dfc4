package papers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"newsbrief/internal/core"
	"newsbrief/internal/logger"
)

// arxivFeeds maps each rotation category to its arxiv RSS listing. RSS is
// the primary source; the Semantic Scholar API is the fallback.
var arxivFeeds = map[string]string{
	"distributed-systems": "https://rss.arxiv.org/rss/cs.DC",
	"security":            "https://rss.arxiv.org/rss/cs.CR",
	"ai":                  "https://rss.arxiv.org/rss/cs.AI",
	"cloud":               "https://rss.arxiv.org/rss/cs.SE",
}

// fallbackQueries drive the Semantic Scholar search per category.
var fallbackQueries = map[string]string{
	"distributed-systems": "distributed consensus Raft Paxos MapReduce",
	"security":            "cryptography differential privacy Byzantine fault tolerance",
	"ai":                  "Transformer attention large language model",
	"cloud":               "serverless microservices container orchestration",
}

// Options configures candidate retrieval.
type Options struct {
	MinCandidates      int           // Below this, RSS results trigger the API fallback
	MinCitations       int           // Fallback results under this citation count are dropped
	SemanticScholarURL string
	UserAgent          string
	Timeout            time.Duration
	ArxivFeedBase      string // Overrides the arxiv feed host, for testing
}

// DefaultOptions returns the stock retrieval policy.
func DefaultOptions() Options {
	return Options{
		MinCandidates:      3,
		MinCitations:       200,
		SemanticScholarURL: "https://api.semanticscholar.org/graph/v1/paper/search",
		UserAgent:          "newsbrief/1.0",
		Timeout:            30 * time.Second,
	}
}

// Fetcher retrieves paper candidates for a category.
type Fetcher struct {
	client *http.Client
	opts   Options
}

// NewFetcher builds a fetcher. Zero options fall back to defaults.
func NewFetcher(opts Options) *Fetcher {
	defaults := DefaultOptions()
	if opts.MinCandidates <= 0 {
		opts.MinCandidates = defaults.MinCandidates
	}
	if opts.MinCitations <= 0 {
		opts.MinCitations = defaults.MinCitations
	}
	if opts.SemanticScholarURL == "" {
		opts.SemanticScholarURL = defaults.SemanticScholarURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	return &Fetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
	}
}

// Candidates fetches paper candidates for the category. The arxiv RSS
// listing is tried first; the Semantic Scholar fallback runs only when the
// primary fails or returns fewer than MinCandidates papers, never
// redundantly.
func (f *Fetcher) Candidates(ctx context.Context, category string) ([]core.PaperCandidate, error) {
	primary, err := f.fromArxiv(ctx, category)
	if err != nil {
		logger.Warn("Arxiv feed failed, falling back to API", "category", category, "error", err.Error())
	} else if len(primary) >= f.opts.MinCandidates {
		return primary, nil
	} else {
		logger.Info("Arxiv feed below minimum, adding API fallback",
			"category", category, "primary", len(primary), "min", f.opts.MinCandidates)
	}

	fallback, fbErr := f.fromSemanticScholar(ctx, category)
	if fbErr != nil {
		if len(primary) > 0 {
			return primary, nil
		}
		return nil, fmt.Errorf("paper retrieval failed for %s: %w", category, fbErr)
	}

	return mergeCandidates(primary, fallback), nil
}

// mergeCandidates appends fallback results after primary ones, dropping
// duplicate IDs.
func mergeCandidates(primary, fallback []core.PaperCandidate) []core.PaperCandidate {
	seen := make(map[string]bool, len(primary))
	merged := make([]core.PaperCandidate, 0, len(primary)+len(fallback))
	for _, c := range append(primary, fallback...) {
		if c.ArxivID == "" || seen[c.ArxivID] {
			continue
		}
		seen[c.ArxivID] = true
		merged = append(merged, c)
	}
	return merged
}

// arxivRSS is the subset of the arxiv RSS schema the fetcher reads.
type arxivRSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			Creator     string `xml:"creator"`
		} `xml:"item"`
	} `xml:"channel"`
}

func (f *Fetcher) fromArxiv(ctx context.Context, category string) ([]core.PaperCandidate, error) {
	feedURL, ok := arxivFeeds[category]
	if !ok {
		return nil, fmt.Errorf("no arxiv feed for category %s", category)
	}
	if f.opts.ArxivFeedBase != "" {
		feedURL = f.opts.ArxivFeedBase + "/" + category
	}

	raw, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var feed arxivRSS
	if err := xml.Unmarshal(raw, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse arxiv feed: %w", err)
	}

	candidates := make([]core.PaperCandidate, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		id := arxivIDFromLink(item.Link)
		if id == "" {
			continue
		}
		candidates = append(candidates, core.PaperCandidate{
			ArxivID:  id,
			Title:    strings.TrimSpace(item.Title),
			Abstract: stripHTML(item.Description),
			Authors:  splitAuthors(item.Creator),
			URL:      item.Link,
			PDFURL:   "https://arxiv.org/pdf/" + id,
			Category: category,
		})
	}
	return candidates, nil
}

// arxivIDFromLink extracts the identifier from an abs link, e.g.
// https://arxiv.org/abs/2506.01234 -> 2506.01234.
func arxivIDFromLink(link string) string {
	const marker = "/abs/"
	i := strings.Index(link, marker)
	if i < 0 {
		return ""
	}
	id := link[i+len(marker):]
	return strings.TrimSuffix(strings.TrimSpace(id), "/")
}

// stripHTML flattens the HTML fragments arxiv puts in item descriptions.
func stripHTML(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func splitAuthors(creator string) []string {
	if strings.TrimSpace(creator) == "" {
		return nil
	}
	parts := strings.Split(creator, ",")
	authors := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}

// scholarResponse is the subset of the Semantic Scholar search response the
// fallback reads.
type scholarResponse struct {
	Data []struct {
		PaperID       string `json:"paperId"`
		Title         string `json:"title"`
		Abstract      string `json:"abstract"`
		Year          int    `json:"year"`
		CitationCount int    `json:"citationCount"`
		URL           string `json:"url"`
		Authors       []struct {
			Name string `json:"name"`
		} `json:"authors"`
		ExternalIDs struct {
			ArXiv string `json:"ArXiv"`
		} `json:"externalIds"`
		OpenAccessPDF struct {
			URL string `json:"url"`
		} `json:"openAccessPdf"`
	} `json:"data"`
}

func (f *Fetcher) fromSemanticScholar(ctx context.Context, category string) ([]core.PaperCandidate, error) {
	query, ok := fallbackQueries[category]
	if !ok {
		return nil, fmt.Errorf("no fallback query for category %s", category)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "20")
	params.Set("fields", "paperId,title,abstract,authors,year,citationCount,url,openAccessPdf,externalIds")

	raw, err := f.get(ctx, f.opts.SemanticScholarURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp scholarResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse paper search response: %w", err)
	}

	candidates := make([]core.PaperCandidate, 0, len(resp.Data))
	for _, item := range resp.Data {
		if item.CitationCount < f.opts.MinCitations {
			continue
		}
		id := item.ExternalIDs.ArXiv
		if id == "" {
			id = item.PaperID
		}
		authors := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			authors = append(authors, a.Name)
		}
		candidates = append(candidates, core.PaperCandidate{
			ArxivID:       id,
			Title:         item.Title,
			Abstract:      item.Abstract,
			Authors:       authors,
			Year:          item.Year,
			CitationCount: item.CitationCount,
			URL:           item.URL,
			PDFURL:        item.OpenAccessPDF.URL,
			Category:      category,
		})
	}
	return candidates, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}
