// Package dedup collapses near-duplicate articles across sources using URL
// canonicalization plus title-similarity clustering.
package dedup

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"newsbrief/internal/core"
)

// trackingParams are query parameters stripped during URL canonicalization.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"fbclid":       true,
	"gclid":        true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"source":       true,
}

// NormalizeURL canonicalizes a URL for dedup comparison: lower-case host,
// http upgraded to https, tracking query parameters stripped, trailing slash
// removed. Normalization is idempotent.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return strings.TrimSpace(raw)
	}

	if parsed.Scheme == "http" {
		parsed.Scheme = "https"
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	query := parsed.Query()
	for param := range query {
		if trackingParams[strings.ToLower(param)] {
			query.Del(param)
		}
	}
	parsed.RawQuery = query.Encode()

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	return parsed.String()
}

// TitleSimilarity computes a symmetric token-set (Jaccard) similarity between
// two titles on a 0-1 scale. Tokenization lower-cases and splits on
// non-alphanumeric runs, so punctuation and casing differences do not count.
func TitleSimilarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for token := range ta {
		if tb[token] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens[b.String()] = true
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// Options holds the clustering policy knobs. Threshold and window are tunable
// configuration, not architecture.
type Options struct {
	SimilarityThreshold float64       // Pairs at or above this join a cluster
	Window              time.Duration // Pairs published further apart never cluster
	Now                 time.Time     // Reference time for missing published dates
}

// DefaultOptions returns the stock clustering policy.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.6,
		Window:              48 * time.Hour,
		Now:                 time.Now().UTC(),
	}
}

// Cluster partitions articles into dedup clusters. Identical normalized URLs
// always share a cluster; distinct-URL pairs join when their title similarity
// is at or above the threshold and they were published within the window.
// Membership is a transitive closure, so A~B and B~C puts all three together.
// The partition is invariant to input order.
func Cluster(articles []core.Article, opts Options) []core.DedupCluster {
	if len(articles) == 0 {
		return nil
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	// Sort a copy by normalized URL then ID so union-find decisions never
	// depend on caller ordering.
	sorted := make([]core.Article, len(articles))
	copy(sorted, articles)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].NormalizedURL != sorted[j].NormalizedURL {
			return sorted[i].NormalizedURL < sorted[j].NormalizedURL
		}
		return sorted[i].ID < sorted[j].ID
	})

	parent := make([]int, len(sorted))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra < rb {
				parent[rb] = ra
			} else {
				parent[ra] = rb
			}
		}
	}

	// Pass 1: identical normalized URL joins unconditionally.
	byURL := make(map[string]int)
	for i, a := range sorted {
		if first, ok := byURL[a.NormalizedURL]; ok {
			union(first, i)
		} else {
			byURL[a.NormalizedURL] = i
		}
	}

	// Pass 2: title similarity within the publish window.
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if find(i) == find(j) {
				continue
			}
			if !withinWindow(sorted[i], sorted[j], opts) {
				continue
			}
			if TitleSimilarity(sorted[i].Title, sorted[j].Title) >= opts.SimilarityThreshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]core.Article)
	var roots []int
	for i, a := range sorted {
		root := find(i)
		if _, ok := groups[root]; !ok {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], a)
	}
	sort.Ints(roots)

	clusters := make([]core.DedupCluster, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		clusters = append(clusters, core.DedupCluster{
			Canonical: selectCanonical(members),
			Members:   members,
		})
	}
	return clusters
}

// withinWindow reports whether two articles were published close enough to be
// clustering candidates. A missing published date counts as now.
func withinWindow(a, b core.Article, opts Options) bool {
	ta := publishedOrNow(a, opts.Now)
	tb := publishedOrNow(b, opts.Now)
	gap := ta.Sub(tb)
	if gap < 0 {
		gap = -gap
	}
	return gap <= opts.Window
}

func publishedOrNow(a core.Article, now time.Time) time.Time {
	if a.PublishedAt.IsZero() {
		return now
	}
	return a.PublishedAt
}

// selectCanonical picks the cluster representative: earliest published date,
// ties broken by source priority (lower wins), then lexicographic normalized
// URL. Articles with no published date sort last unless they are the sole
// member.
func selectCanonical(members []core.Article) core.Article {
	best := members[0]
	for _, candidate := range members[1:] {
		if canonicalLess(candidate, best) {
			best = candidate
		}
	}
	return best
}

func canonicalLess(a, b core.Article) bool {
	aMissing := a.PublishedAt.IsZero()
	bMissing := b.PublishedAt.IsZero()
	if aMissing != bMissing {
		return bMissing
	}
	if !aMissing && !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.Before(b.PublishedAt)
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.NormalizedURL < b.NormalizedURL
}

// Canonicals flattens clusters into their canonical articles, preserving
// cluster order.
func Canonicals(clusters []core.DedupCluster) []core.Article {
	out := make([]core.Article, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c.Canonical)
	}
	return out
}
