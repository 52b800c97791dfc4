package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"newsbrief/internal/core"
	"newsbrief/internal/logger"
)

// excerptLen caps how much of a summary the pass-through mode emits per item.
const excerptLen = 280

// Passthrough is the degraded summarizer used when no API credential is
// configured. It produces deterministic, unsummarized excerpts so a run
// always yields an artifact instead of silently dropping articles.
type Passthrough struct{}

// NewPassthrough creates the pass-through summarizer.
func NewPassthrough() *Passthrough {
	logger.Warn("No summarizer credential configured, running in pass-through mode")
	return &Passthrough{}
}

// Select keeps the first maxCount articles in buffer order.
func (p *Passthrough) Select(ctx context.Context, articles []core.Article, maxCount int) (core.SelectionResult, error) {
	if len(articles) > maxCount {
		articles = articles[:maxCount]
	}
	return core.SelectionResult{
		Articles:   articles,
		Rationale:  "pass-through: first articles in buffer order",
		SelectedAt: time.Now().UTC(),
	}, nil
}

// Brief builds a briefing of raw excerpts: the first three articles become
// highlights, the rest are grouped into sections by source category.
func (p *Passthrough) Brief(ctx context.Context, articles []core.Article, maxSecurityItems int) (core.Briefing, error) {
	if len(articles) == 0 {
		return core.Briefing{}, fmt.Errorf("%w: no articles for pass-through briefing", core.ErrEmptyCandidateSet)
	}

	// Every schema section is present even when empty, so the structural
	// checks downstream hold in degraded mode too.
	briefing := core.Briefing{
		Date:  time.Now().UTC(),
		Model: "passthrough",
	}
	for _, name := range core.SectionOrder {
		briefing.Sections = append(briefing.Sections, core.Section{Name: name})
	}

	sectionFor := func(category string) string {
		switch strings.ToLower(category) {
		case "security":
			return core.SectionSecurity
		case "market", "finance":
			return core.SectionMarket
		case "data", "data-engineering":
			return core.SectionDataEngineering
		default:
			return core.SectionTechnology
		}
	}

	add := func(name string, a core.Article) {
		section := briefing.Section(name)
		if name == core.SectionSecurity && len(section.Blocks) >= maxSecurityItems {
			return
		}
		section.Blocks = append(section.Blocks, excerptBlock(a))
	}

	for i, a := range articles {
		if i < 3 {
			add(core.SectionHighlights, a)
			continue
		}
		add(sectionFor(a.Category), a)
	}
	return briefing, nil
}

// Refine is the identity in pass-through mode.
func (p *Passthrough) Refine(ctx context.Context, draft core.Briefing) (core.Briefing, error) {
	return draft, nil
}

// PaperSummary emits the abstract as-is, clearly labeled as unsummarized.
func (p *Passthrough) PaperSummary(ctx context.Context, paper core.PaperCandidate) (string, error) {
	var sb strings.Builder
	sb.WriteString("### Abstract (unsummarized)\n\n")
	sb.WriteString(paper.Abstract + "\n\n")
	fmt.Fprintf(&sb, "Authors: %s. Year: %d. Citations: %d.\n",
		strings.Join(paper.Authors, ", "), paper.Year, paper.CitationCount)
	return sb.String(), nil
}

func excerptBlock(a core.Article) string {
	excerpt := a.Summary
	if excerpt == "" {
		excerpt = a.Title
	}
	if len(excerpt) > excerptLen {
		// Back up to a rune boundary so the ellipsis never follows a
		// partial UTF-8 sequence.
		cut := excerptLen
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut] + "..."
	}
	return fmt.Sprintf("**%s** - %s [%s](%s)", a.Title, excerpt, a.SourceName, a.URL)
}
