// Package papers implements the research-paper side pipeline: deterministic
// day-based category rotation, candidate retrieval, and novelty filtering
// against the persisted history.
package papers

import (
	"fmt"
	"sort"
	"time"

	"newsbrief/internal/core"
)

// Categories is the fixed rotation, indexed by day of year.
var Categories = []string{
	"distributed-systems",
	"security",
	"ai",
	"cloud",
}

// CategoryFor returns the category for a date. Pure function of the day of
// year, so the same date always rotates to the same category.
func CategoryFor(date time.Time) string {
	return Categories[date.YearDay()%len(Categories)]
}

// FilterNovel marks candidates found in the seen-ID history and returns only
// the unseen ones. Seen candidates are excluded even when top-ranked.
func FilterNovel(candidates []core.PaperCandidate, seen map[string]bool) []core.PaperCandidate {
	novel := make([]core.PaperCandidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.ArxivID] {
			c.SeenBefore = true
			continue
		}
		novel = append(novel, c)
	}
	return novel
}

// SelectCandidate picks the paper to digest: highest citation count first,
// ties broken by URL so the choice is reproducible run to run.
func SelectCandidate(candidates []core.PaperCandidate) (core.PaperCandidate, error) {
	if len(candidates) == 0 {
		return core.PaperCandidate{}, fmt.Errorf("paper selection: %w", core.ErrEmptyCandidateSet)
	}
	sorted := make([]core.PaperCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CitationCount != sorted[j].CitationCount {
			return sorted[i].CitationCount > sorted[j].CitationCount
		}
		return sorted[i].URL < sorted[j].URL
	})
	return sorted[0], nil
}
