// Package render writes the dated markdown artifacts: the collect digest,
// the validated briefing, and the paper summary. Writes are atomic so a
// crashed run never leaves a partial artifact for the next one.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"newsbrief/internal/core"
	"newsbrief/internal/llm"
)

// WriteDigest renders the collect-phase digest: the deduplicated articles
// appended to the buffer this run, grouped by category, plus the per-source
// fetch stats appendix. Returns the artifact path.
func WriteDigest(articles []core.Article, stats []core.FeedStat, outputDir string, date time.Time) (string, error) {
	var b strings.Builder
	dateStr := date.UTC().Format("2006-01-02")
	b.WriteString(fmt.Sprintf("# News Digest - %s\n\n", dateStr))

	if len(articles) == 0 {
		b.WriteString("No new articles collected in this run.\n")
	} else {
		grouped := make(map[string][]core.Article)
		for _, a := range articles {
			grouped[effectiveCategory(a)] = append(grouped[effectiveCategory(a)], a)
		}
		categories := make([]string, 0, len(grouped))
		for category := range grouped {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		for _, category := range categories {
			b.WriteString(fmt.Sprintf("## %s\n\n", titleCase(category)))
			for _, a := range grouped[category] {
				b.WriteString(fmt.Sprintf("- [%s](%s) (%s)\n", a.Title, a.URL, a.SourceName))
				if a.Summary != "" {
					b.WriteString(fmt.Sprintf("  %s\n", firstLine(a.Summary)))
				}
			}
			b.WriteString("\n")
		}
	}

	writeStatsAppendix(&b, stats)

	return writeAtomic(outputDir, fmt.Sprintf("digest-%s.md", dateStr), b.String())
}

// WriteBriefing renders the validated briefing with its validation report
// appended for audit. Returns the artifact path.
func WriteBriefing(briefing core.Briefing, report core.ValidationReport, outputDir string, date time.Time) (string, error) {
	var b strings.Builder
	dateStr := date.UTC().Format("2006-01-02")
	b.WriteString(fmt.Sprintf("# Daily Briefing - %s\n\n", dateStr))
	b.WriteString(llm.RenderBriefingMarkdown(briefing))
	b.WriteString("\n\n---\n\n")
	b.WriteString("## Validation\n\n")

	if len(report.Findings) == 0 {
		b.WriteString("No findings.\n")
	} else {
		for _, f := range report.Findings {
			b.WriteString(fmt.Sprintf("- `%s` %s/%s: %s\n", f.Location, f.Kind, f.Severity, f.Detail))
		}
	}
	b.WriteString(fmt.Sprintf("\n*Model: %s*\n", briefing.Model))

	return writeAtomic(outputDir, fmt.Sprintf("briefing-%s.md", dateStr), b.String())
}

// WritePaper renders the paper-of-the-day summary. Returns the artifact path.
func WritePaper(paper core.PaperCandidate, summary, outputDir string, date time.Time) (string, error) {
	var b strings.Builder
	dateStr := date.UTC().Format("2006-01-02")
	b.WriteString(fmt.Sprintf("# Paper of the Day - %s\n\n", dateStr))
	b.WriteString(fmt.Sprintf("## %s\n\n", paper.Title))
	if len(paper.Authors) > 0 {
		b.WriteString(fmt.Sprintf("*%s*", strings.Join(paper.Authors, ", ")))
		if paper.Year > 0 {
			b.WriteString(fmt.Sprintf(" (%d)", paper.Year))
		}
		b.WriteString("\n\n")
	}
	b.WriteString(fmt.Sprintf("Category: %s", paper.Category))
	if paper.CitationCount > 0 {
		b.WriteString(fmt.Sprintf(" | Citations: %d", paper.CitationCount))
	}
	b.WriteString("\n\n")
	b.WriteString(summary)
	b.WriteString("\n\n---\n\n")
	b.WriteString(fmt.Sprintf("[Paper](%s)", paper.URL))
	if paper.PDFURL != "" {
		b.WriteString(fmt.Sprintf(" | [PDF](%s)", paper.PDFURL))
	}
	b.WriteString("\n")

	return writeAtomic(outputDir, fmt.Sprintf("paper-%s.md", dateStr), b.String())
}

func writeStatsAppendix(b *strings.Builder, stats []core.FeedStat) {
	if len(stats) == 0 {
		return
	}
	b.WriteString("---\n\n## Feed Stats\n\n")
	for _, s := range stats {
		if s.Err != "" {
			b.WriteString(fmt.Sprintf("- %s: failed (%s)\n", s.Source, s.Err))
			continue
		}
		b.WriteString(fmt.Sprintf("- %s: %d articles in %s\n", s.Source, s.Fetched, s.Duration.Round(time.Millisecond)))
	}
}

// writeAtomic writes content to outputDir/filename via a temp file and
// rename, so readers never observe a partial artifact.
func writeAtomic(outputDir, filename, content string) (string, error) {
	if outputDir == "" {
		outputDir = "digests"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	finalPath := filepath.Join(outputDir, filename)
	tmp, err := os.CreateTemp(outputDir, filename+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize %s: %w", finalPath, err)
	}

	return finalPath, nil
}

func effectiveCategory(a core.Article) string {
	if a.Category == "" {
		return "uncategorized"
	}
	return a.Category
}

func titleCase(s string) string {
	words := strings.Split(s, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
