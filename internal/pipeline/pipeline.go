// Package pipeline drives the briefing generation stages as an explicit
// state machine: select, enrich, brief, refine, done. Any stage error moves
// the run to the absorbing failed state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsbrief/internal/core"
	"newsbrief/internal/logger"
)

// Stage is one state of the briefing state machine.
type Stage string

const (
	StageSelect Stage = "select"
	StageEnrich Stage = "enrich"
	StageBrief  Stage = "brief"
	StageRefine Stage = "refine"
	StageDone   Stage = "done"
	StageFailed Stage = "failed"
)

// Options bounds the run.
type Options struct {
	MaxSelection     int // Upper bound on selected articles
	MaxSecurityItems int // Upper bound on security section entries
}

// DefaultOptions returns the stock run bounds.
func DefaultOptions() Options {
	return Options{
		MaxSelection:     10,
		MaxSecurityItems: 5,
	}
}

// Result is the outcome of a completed run.
type Result struct {
	Briefing  core.Briefing
	Selection core.SelectionResult
	Enriched  []core.Article // Selected articles with fetched full text, for validation
	Stages    []Stage        // Stages visited, in order, including the terminal one
}

// Orchestrator runs the briefing stages against a summarizer and an
// enricher. One orchestrator handles one run.
type Orchestrator struct {
	summarizer Summarizer
	enricher   Enricher
	opts       Options
	log        *slog.Logger
}

// New builds an orchestrator. Stage bounds of zero fall back to defaults.
func New(summarizer Summarizer, enricher Enricher, opts Options) *Orchestrator {
	defaults := DefaultOptions()
	if opts.MaxSelection <= 0 {
		opts.MaxSelection = defaults.MaxSelection
	}
	if opts.MaxSecurityItems <= 0 {
		opts.MaxSecurityItems = defaults.MaxSecurityItems
	}
	return &Orchestrator{
		summarizer: summarizer,
		enricher:   enricher,
		opts:       opts,
		log:        logger.Get(),
	}
}

// Run executes the full stage sequence over the drained buffer contents.
// An empty buffer fails immediately. The returned Result carries the visited
// stage history even on failure, so callers can report where a run died.
func (o *Orchestrator) Run(ctx context.Context, buffered []core.Article) (Result, error) {
	result := Result{}
	enter := func(s Stage) {
		result.Stages = append(result.Stages, s)
		o.log.Debug("Pipeline stage", "stage", string(s))
	}

	enter(StageSelect)
	if len(buffered) == 0 {
		enter(StageFailed)
		return result, fmt.Errorf("select: %w", core.ErrEmptyCandidateSet)
	}
	selection, err := o.summarizer.Select(ctx, buffered, o.opts.MaxSelection)
	if err != nil {
		enter(StageFailed)
		return result, fmt.Errorf("select: %w", err)
	}
	if len(selection.Articles) == 0 {
		enter(StageFailed)
		return result, fmt.Errorf("select: %w", core.ErrEmptyCandidateSet)
	}
	result.Selection = selection
	o.log.Info("Selection complete", "buffered", len(buffered), "selected", len(selection.Articles))

	enter(StageEnrich)
	enriched := o.enricher.EnrichAll(ctx, selection.Articles)
	result.Enriched = enriched

	enter(StageBrief)
	draft, err := o.summarizer.Brief(ctx, enriched, o.opts.MaxSecurityItems)
	if err != nil {
		enter(StageFailed)
		return result, fmt.Errorf("brief: %w", err)
	}

	enter(StageRefine)
	refined, err := o.summarizer.Refine(ctx, draft)
	if err != nil {
		enter(StageFailed)
		return result, fmt.Errorf("refine: %w", err)
	}

	if err := checkStructure(refined); err != nil {
		enter(StageFailed)
		return result, fmt.Errorf("refine: %w", err)
	}

	if refined.Date.IsZero() {
		refined.Date = time.Now().UTC()
	}
	result.Briefing = refined

	enter(StageDone)
	o.log.Info("Briefing complete", "model", refined.Model, "sections", len(refined.Sections))
	return result, nil
}

// checkStructure verifies the section schema before the run can reach done:
// every section present, highlights non-empty.
func checkStructure(b core.Briefing) error {
	for _, name := range core.SectionOrder {
		if b.Section(name) == nil {
			return fmt.Errorf("missing section %q: %w", name, core.ErrSummarizerMalformed)
		}
	}
	highlights := b.Section(core.SectionHighlights)
	if len(highlights.Blocks) == 0 {
		return fmt.Errorf("empty highlights: %w", core.ErrSummarizerMalformed)
	}
	return nil
}
