package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"newsbrief/internal/config"
	"newsbrief/internal/core"
	"newsbrief/internal/fetch"
	"newsbrief/internal/llm"
	"newsbrief/internal/logger"
	"newsbrief/internal/pipeline"
	"newsbrief/internal/render"
	"newsbrief/internal/store"
	"newsbrief/internal/validate"
)

// NewDigestCmd creates the digest command: drain the buffer through the
// staged pipeline and publish a validated briefing.
func NewDigestCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Drain the buffer and generate the daily briefing",
		Long: `Drain everything from the buffer in one atomic snapshot, run the staged
summarization pipeline (select, enrich, brief, refine), validate the
result against the source articles, and write the briefing artifact
with a review request.

Without an API key the pipeline runs in pass-through mode and emits
unsummarized excerpts instead of generative content.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "generate from a buffer snapshot without consuming it or delivering")
	return cmd
}

func runDigest(ctx context.Context, dryRun bool) error {
	cfg := config.Get()

	s, err := store.Open(cfg.App.DataDir)
	if err != nil {
		return err
	}
	defer s.Close()

	var buffered []core.Article
	if dryRun {
		buffered, err = s.Unconsumed(ctx)
	} else {
		buffered, err = s.DrainAll(ctx)
	}
	if err != nil {
		return err
	}

	summarizer, err := newSummarizer(ctx, cfg)
	if err != nil {
		return err
	}

	enricher := fetch.NewEnricher(config.GetFeedTimeout(), cfg.Feeds.UserAgent, cfg.Feeds.Concurrency)
	orchestrator := pipeline.New(summarizer, enricher, pipeline.Options{
		MaxSelection:     cfg.Validator.MaxSelection,
		MaxSecurityItems: cfg.Validator.MaxSecurityItems,
	})

	result, err := orchestrator.Run(ctx, buffered)
	if err != nil {
		if errors.Is(err, core.ErrEmptyCandidateSet) {
			fmt.Println("Nothing to digest.")
			return nil
		}
		return err
	}

	validator := validate.New(result.Enriched, cfg.Validator.AllowedDomains, cfg.Validator.BannedPhrases)
	cleaned, report := validator.Run(result.Briefing)
	if report.HasRejects() {
		logger.Warn("Validator stripped unverifiable content", "findings", len(report.Findings))
	}

	if dryRun {
		fmt.Println(llm.RenderBriefingMarkdown(cleaned))
		for _, f := range report.Findings {
			fmt.Printf("finding: %s %s/%s: %s\n", f.Location, f.Kind, f.Severity, f.Detail)
		}
		return nil
	}

	path, err := render.WriteBriefing(cleaned, report, cfg.Output.Directory, time.Now().UTC())
	if err != nil {
		return err
	}

	reviewer := pipeline.FileReviewRequester{}
	if err := reviewer.RequestReview(ctx, path, report); err != nil {
		return err
	}

	fmt.Printf("Briefing written to %s (%d articles, model %s)\n", path, len(result.Selection.Articles), cleaned.Model)
	return nil
}

// newSummarizer picks the real client when a credential is configured and
// the pass-through fallback otherwise.
func newSummarizer(ctx context.Context, cfg *config.Config) (pipeline.Summarizer, error) {
	if cfg.AI.Gemini.APIKey == "" {
		return llm.NewPassthrough(), nil
	}
	return llm.NewClient(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model, config.GetGeminiTimeout())
}
