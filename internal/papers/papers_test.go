package papers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsbrief/internal/core"
)

func TestCategoryForRotation(t *testing.T) {
	// Same day-of-year offset by the rotation length lands on the same
	// category, for every day of the year.
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 365-len(Categories); day++ {
		a := CategoryFor(base.AddDate(0, 0, day))
		b := CategoryFor(base.AddDate(0, 0, day+len(Categories)))
		if a != b {
			t.Fatalf("Rotation broke at day %d: %s vs %s", day, a, b)
		}
	}
}

func TestCategoryForCoversAllCategories(t *testing.T) {
	seen := make(map[string]bool)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < len(Categories); day++ {
		seen[CategoryFor(base.AddDate(0, 0, day))] = true
	}
	if len(seen) != len(Categories) {
		t.Errorf("Expected %d distinct categories over a full cycle, got %d", len(Categories), len(seen))
	}
}

func TestFilterNovel(t *testing.T) {
	candidates := []core.PaperCandidate{
		{ArxivID: "2506.00001", Title: "Seen paper", CitationCount: 900},
		{ArxivID: "2506.00002", Title: "Fresh paper", CitationCount: 300},
	}
	seen := map[string]bool{"2506.00001": true}

	novel := FilterNovel(candidates, seen)
	if len(novel) != 1 {
		t.Fatalf("Expected 1 novel candidate, got %d", len(novel))
	}
	if novel[0].ArxivID != "2506.00002" {
		t.Errorf("Seen paper survived the filter even though top-ranked: %+v", novel)
	}
}

func TestSelectCandidate(t *testing.T) {
	candidates := []core.PaperCandidate{
		{ArxivID: "b", CitationCount: 500, URL: "https://arxiv.org/abs/b"},
		{ArxivID: "a", CitationCount: 900, URL: "https://arxiv.org/abs/a"},
		{ArxivID: "c", CitationCount: 900, URL: "https://arxiv.org/abs/c"},
	}

	selected, err := SelectCandidate(candidates)
	if err != nil {
		t.Fatalf("SelectCandidate failed: %v", err)
	}
	// Top citation count wins; the URL tie-break makes the result stable.
	if selected.ArxivID != "a" {
		t.Errorf("Expected candidate a, got %s", selected.ArxivID)
	}

	// Input order must not change the outcome.
	reversed := []core.PaperCandidate{candidates[2], candidates[0], candidates[1]}
	again, err := SelectCandidate(reversed)
	if err != nil {
		t.Fatalf("SelectCandidate failed: %v", err)
	}
	if again.ArxivID != selected.ArxivID {
		t.Errorf("Selection depends on input order: %s vs %s", again.ArxivID, selected.ArxivID)
	}
}

func TestSelectCandidateEmpty(t *testing.T) {
	if _, err := SelectCandidate(nil); !errors.Is(err, core.ErrEmptyCandidateSet) {
		t.Errorf("Expected ErrEmptyCandidateSet, got %v", err)
	}
}

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
<title>cs.DC updates on arXiv.org</title>
<item>
<title>Consensus Without Clocks</title>
<link>https://arxiv.org/abs/2506.01234</link>
<description>&lt;p&gt;We present a leaderless consensus protocol.&lt;/p&gt;</description>
<dc:creator>Ada Lovelace, Edsger Dijkstra</dc:creator>
</item>
<item>
<title>Sharded State Machines</title>
<link>https://arxiv.org/abs/2506.05678</link>
<description>Replication at scale.</description>
<dc:creator>Barbara Liskov</dc:creator>
</item>
</channel>
</rss>`

const scholarJSON = `{"data":[
  {"paperId":"p1","title":"Paxos Made Live","abstract":"Lessons from production.","year":2007,
   "citationCount":2500,"url":"https://www.semanticscholar.org/paper/p1",
   "authors":[{"name":"Tushar Chandra"}],"externalIds":{"ArXiv":"0704.0001"}},
  {"paperId":"p2","title":"Under-cited Paper","abstract":"","year":2024,
   "citationCount":5,"url":"https://www.semanticscholar.org/paper/p2",
   "authors":[],"externalIds":{}}
]}`

func TestCandidatesPrimaryOnly(t *testing.T) {
	var apiHits int
	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(arxivFeedXML))
	}))
	defer arxiv.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiHits++
		_, _ = w.Write([]byte(scholarJSON))
	}))
	defer api.Close()

	f := NewFetcher(Options{
		MinCandidates:      2,
		SemanticScholarURL: api.URL,
		ArxivFeedBase:      arxiv.URL,
	})

	candidates, err := f.Candidates(context.Background(), "distributed-systems")
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates from RSS, got %d", len(candidates))
	}
	if apiHits != 0 {
		t.Errorf("Fallback must not run when the primary suffices, got %d API hits", apiHits)
	}

	first := candidates[0]
	if first.ArxivID != "2506.01234" {
		t.Errorf("ArxivID = %q, want 2506.01234", first.ArxivID)
	}
	if first.Abstract != "We present a leaderless consensus protocol." {
		t.Errorf("HTML not stripped from abstract: %q", first.Abstract)
	}
	if len(first.Authors) != 2 || first.Authors[0] != "Ada Lovelace" {
		t.Errorf("Authors parsed wrong: %v", first.Authors)
	}
	if first.PDFURL != "https://arxiv.org/pdf/2506.01234" {
		t.Errorf("PDFURL = %q", first.PDFURL)
	}
}

func TestCandidatesFallbackOnPrimaryFailure(t *testing.T) {
	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer arxiv.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(scholarJSON))
	}))
	defer api.Close()

	f := NewFetcher(Options{
		MinCitations:       200,
		SemanticScholarURL: api.URL,
		ArxivFeedBase:      arxiv.URL,
	})

	candidates, err := f.Candidates(context.Background(), "distributed-systems")
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 fallback candidate above the citation floor, got %d", len(candidates))
	}
	if candidates[0].ArxivID != "0704.0001" {
		t.Errorf("Expected the arxiv external ID, got %q", candidates[0].ArxivID)
	}
	if candidates[0].CitationCount != 2500 {
		t.Errorf("CitationCount = %d, want 2500", candidates[0].CitationCount)
	}
}

func TestCandidatesFallbackOnThinPrimary(t *testing.T) {
	// One RSS item with a 3-candidate minimum: fallback results get merged in.
	thin := `<?xml version="1.0"?><rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/"><channel>
<item><title>Solo</title><link>https://arxiv.org/abs/2506.09999</link><description>One.</description></item></channel></rss>`
	arxiv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(thin))
	}))
	defer arxiv.Close()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(scholarJSON))
	}))
	defer api.Close()

	f := NewFetcher(Options{
		MinCandidates:      3,
		MinCitations:       200,
		SemanticScholarURL: api.URL,
		ArxivFeedBase:      arxiv.URL,
	})

	candidates, err := f.Candidates(context.Background(), "security")
	if err != nil {
		t.Fatalf("Candidates failed: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("Expected merged primary+fallback set, got %d", len(candidates))
	}
	if candidates[0].ArxivID != "2506.09999" || candidates[1].ArxivID != "0704.0001" {
		t.Errorf("Merge order wrong: %+v", candidates)
	}
}

func TestArxivIDFromLink(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://arxiv.org/abs/2506.01234", "2506.01234"},
		{"https://arxiv.org/abs/2506.01234/", "2506.01234"},
		{"https://example.com/paper", ""},
	}
	for _, tt := range tests {
		if got := arxivIDFromLink(tt.link); got != tt.want {
			t.Errorf("arxivIDFromLink(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}
