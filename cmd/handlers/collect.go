package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"newsbrief/internal/config"
	"newsbrief/internal/dedup"
	"newsbrief/internal/feeds"
	"newsbrief/internal/logger"
	"newsbrief/internal/render"
	"newsbrief/internal/store"
)

// NewCollectCmd creates the collect command: fetch all configured feeds,
// deduplicate, and append the novel stories to the buffer.
func NewCollectCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch all feeds and append new articles to the buffer",
		Long: `Fetch every configured RSS/Atom feed, collapse duplicate stories, and
append the novel ones to the persistent buffer for the next digest run.
A dated collection digest is written listing what arrived.

Individual feed failures are logged and skipped; the batch continues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "fetch and dedup but do not touch the buffer or write artifacts")
	return cmd
}

func runCollect(ctx context.Context, dryRun bool) error {
	cfg := config.Get()

	sources, err := config.LoadSources(cfg.Feeds.SourcesFile)
	if err != nil {
		return err
	}

	fetcher := feeds.NewFetcher(feeds.Options{
		Timeout:     config.GetFeedTimeout(),
		UserAgent:   cfg.Feeds.UserAgent,
		MaxPerFeed:  cfg.Feeds.MaxItemsPerFeed,
		Concurrency: cfg.Feeds.Concurrency,
	})

	articles, stats := fetcher.FetchAll(ctx, sources)
	logger.Info("Fetch complete", "sources", len(sources), "articles", len(articles))

	opts := dedupOptions(cfg)
	clusters := dedup.Cluster(articles, opts)
	canonicals := dedup.Canonicals(clusters)
	logger.Info("Dedup complete", "fetched", len(articles), "stories", len(canonicals))

	if dryRun {
		fmt.Printf("Would append %d stories (from %d fetched articles) to the buffer\n", len(canonicals), len(articles))
		for _, a := range canonicals {
			fmt.Printf("  - %s (%s)\n", a.Title, a.SourceName)
		}
		return nil
	}

	s, err := store.Open(cfg.App.DataDir)
	if err != nil {
		return err
	}
	defer s.Close()

	// Expire before appending so a story that re-surfaces after consumption
	// is inserted this cycle, not silently ignored by its leftover row.
	retention := time.Duration(cfg.Dedup.RetentionDays) * 24 * time.Hour
	if expired, err := s.Expire(ctx, retention); err != nil {
		logger.Warn("Buffer expiry failed", "error", err.Error())
	} else if expired > 0 {
		logger.Info("Expired old buffer entries", "count", expired)
	}

	inserted, err := s.Append(ctx, canonicals, opts)
	if err != nil {
		return err
	}

	path, err := render.WriteDigest(canonicals, stats, cfg.Output.Directory, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Printf("Collected %d stories (%d new) -> %s\n", len(canonicals), inserted, path)
	return nil
}

func dedupOptions(cfg *config.Config) dedup.Options {
	return dedup.Options{
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		Window:              time.Duration(cfg.Dedup.WindowHours) * time.Hour,
		Now:                 time.Now().UTC(),
	}
}
