package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"newsbrief/internal/config"
	"newsbrief/internal/core"
	"newsbrief/internal/llm"
	"newsbrief/internal/logger"
	"newsbrief/internal/papers"
	"newsbrief/internal/pipeline"
	"newsbrief/internal/render"
	"newsbrief/internal/store"
)

// paperSummarizer is the subset of the summarizer boundary the paper
// pipeline needs.
type paperSummarizer interface {
	PaperSummary(ctx context.Context, paper core.PaperCandidate) (string, error)
}

// NewPaperCmd creates the paper command: rotate to today's category, pick an
// unseen paper, and publish its summary.
func NewPaperCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "paper",
		Short: "Summarize today's paper of the day",
		Long: `Pick today's paper category from the fixed day-of-year rotation, fetch
candidates (arxiv RSS first, API fallback), select the top unseen paper,
and publish a two-stage summary. The paper is recorded as seen only
after the artifact is written, so a failed run retries it next time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPaper(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "select and summarize without writing artifacts or updating history")
	return cmd
}

func runPaper(ctx context.Context, dryRun bool) error {
	cfg := config.Get()
	today := time.Now().UTC()

	category := papers.CategoryFor(today)
	logger.Info("Paper category for today", "category", category)

	fetcher := papers.NewFetcher(papers.Options{
		MinCandidates:      cfg.Papers.MinCandidates,
		MinCitations:       cfg.Papers.MinCitations,
		SemanticScholarURL: cfg.Papers.SemanticScholarURL,
		UserAgent:          cfg.Feeds.UserAgent,
	})

	candidates, err := fetcher.Candidates(ctx, category)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.App.DataDir)
	if err != nil {
		return err
	}
	defer s.Close()

	seen, err := s.SeenPaperIDs(ctx)
	if err != nil {
		return err
	}

	paper, err := papers.SelectCandidate(papers.FilterNovel(candidates, seen))
	if err != nil {
		if errors.Is(err, core.ErrEmptyCandidateSet) {
			fmt.Println("No unseen papers for today's category.")
			return nil
		}
		return err
	}
	logger.Info("Paper selected", "arxiv_id", paper.ArxivID, "title", paper.Title)

	summarizer, err := newPaperSummarizer(ctx, cfg)
	if err != nil {
		return err
	}

	summary, err := summarizer.PaperSummary(ctx, paper)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Printf("Would publish %s (%s)\n\n%s\n", paper.Title, paper.ArxivID, summary)
		return nil
	}

	path, err := render.WritePaper(paper, summary, cfg.Output.Directory, today)
	if err != nil {
		return err
	}

	// History is updated only after the artifact exists, never on mere
	// selection.
	if err := s.MarkPaperSeen(ctx, paper.ArxivID, paper.Title); err != nil {
		return err
	}
	window := time.Duration(cfg.Papers.HistoryWindowDays) * 24 * time.Hour
	if _, err := s.PrunePapers(ctx, window); err != nil {
		logger.Warn("History pruning failed", "error", err.Error())
	}

	reviewer := pipeline.FileReviewRequester{}
	if err := reviewer.RequestReview(ctx, path, core.ValidationReport{GeneratedAt: today}); err != nil {
		return err
	}

	fmt.Printf("Paper summary written to %s\n", path)
	return nil
}

func newPaperSummarizer(ctx context.Context, cfg *config.Config) (paperSummarizer, error) {
	if cfg.AI.Gemini.APIKey == "" {
		return llm.NewPassthrough(), nil
	}
	return llm.NewClient(ctx, cfg.AI.Gemini.APIKey, cfg.AI.Gemini.Model, config.GetGeminiTimeout())
}
