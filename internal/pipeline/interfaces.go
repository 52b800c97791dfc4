package pipeline

import (
	"context"

	"newsbrief/internal/core"
)

// Summarizer is the language-model boundary used by the orchestrator. Both
// the Gemini client and the pass-through fallback implement it.
type Summarizer interface {
	Select(ctx context.Context, articles []core.Article, maxCount int) (core.SelectionResult, error)
	Brief(ctx context.Context, articles []core.Article, maxSecurityItems int) (core.Briefing, error)
	Refine(ctx context.Context, draft core.Briefing) (core.Briefing, error)
}

// Enricher retrieves full text for selected articles. Enrichment is
// best-effort: implementations return every input article, enriched or not.
type Enricher interface {
	EnrichAll(ctx context.Context, articles []core.Article) []core.Article
}

// ReviewRequester hands a finished artifact to whatever review mechanism is
// configured. Delivery mechanics live behind this boundary.
type ReviewRequester interface {
	RequestReview(ctx context.Context, artifactPath string, report core.ValidationReport) error
}
