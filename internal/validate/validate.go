// Package validate is the deterministic post-processor: it checks a finished
// briefing against the facts extractable from its source articles and cleans
// anything it cannot verify. Removal over fabrication.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"newsbrief/internal/core"
	"newsbrief/internal/dedup"
)

// figureTolerance is the relative difference allowed between a briefing
// figure and a sourced figure.
const figureTolerance = 0.02

// noMarketDataSentinel is the line the summarizer emits when no market data
// exists; it is exempt from the figure check.
const noMarketDataSentinel = "No verifiable market data in today's sources."

var (
	linkPattern   = regexp.MustCompile(`https?://[^\s)\]>"']+`)
	figurePattern = regexp.MustCompile(`-?\$?\d[\d,]*(?:\.\d+)?%?`)
)

// Validator checks one briefing against one set of source articles.
type Validator struct {
	sourceURLs     map[string]bool
	sourceFigures  []float64
	allowedDomains []string
	bannedPhrases  []string
}

// New builds a validator from the articles the briefing was generated from
// plus the configured allow-list and banned-phrase list.
func New(sources []core.Article, allowedDomains, bannedPhrases []string) *Validator {
	v := &Validator{
		sourceURLs:     make(map[string]bool),
		allowedDomains: allowedDomains,
		bannedPhrases:  bannedPhrases,
	}
	for _, a := range sources {
		if a.URL != "" {
			v.sourceURLs[dedup.NormalizeURL(a.URL)] = true
		}
		if a.NormalizedURL != "" {
			v.sourceURLs[a.NormalizedURL] = true
		}
		v.sourceFigures = append(v.sourceFigures, extractFigures(a.Title)...)
		v.sourceFigures = append(v.sourceFigures, extractFigures(a.Summary)...)
		v.sourceFigures = append(v.sourceFigures, extractFigures(a.Content)...)
	}
	return v
}

// Run validates the briefing and returns a cleaned copy plus the full report.
// The report is produced on every run, even when nothing was found.
func (v *Validator) Run(b core.Briefing) (core.Briefing, core.ValidationReport) {
	report := core.ValidationReport{GeneratedAt: time.Now().UTC()}

	cleaned := b
	cleaned.Sections = make([]core.Section, 0, len(b.Sections))
	for _, section := range b.Sections {
		out := core.Section{Name: section.Name}
		for i, block := range section.Blocks {
			location := fmt.Sprintf("%s[%d]", section.Name, i)

			block = v.excisePhrases(block, location, &report)
			block = v.checkLinks(block, location, &report)
			if section.Name == core.SectionMarket && strings.TrimSpace(block) != "" {
				block = v.checkFigures(block, location, &report)
			}

			if strings.TrimSpace(block) != "" {
				out.Blocks = append(out.Blocks, strings.TrimSpace(block))
			}
		}
		cleaned.Sections = append(cleaned.Sections, out)
	}

	return cleaned, report
}

// excisePhrases drops every sentence containing a banned phrase. The finding
// is reject severity; the excision is the auto-correction that makes the
// cleaned briefing publishable.
func (v *Validator) excisePhrases(block, location string, report *core.ValidationReport) string {
	return stripSentences(block, func(sentence string) bool {
		lower := strings.ToLower(sentence)
		for _, phrase := range v.bannedPhrases {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				report.Findings = append(report.Findings, core.Finding{
					Location: location,
					Kind:     core.FindingBannedPhrase,
					Severity: core.SeverityReject,
					Detail:   fmt.Sprintf("excised sentence containing %q", phrase),
				})
				return true
			}
		}
		return false
	})
}

// checkLinks verifies every URL in the block against the source URL set and
// the allow-listed domains, stripping sentences carrying unverifiable links.
func (v *Validator) checkLinks(block, location string, report *core.ValidationReport) string {
	return stripSentences(block, func(sentence string) bool {
		for _, link := range linkPattern.FindAllString(sentence, -1) {
			link = strings.TrimRight(link, ".,;:")
			if v.linkVerified(link) {
				continue
			}
			report.Findings = append(report.Findings, core.Finding{
				Location: location,
				Kind:     core.FindingLink,
				Severity: core.SeverityReject,
				Detail:   fmt.Sprintf("link %s not found in sources or allow-list", link),
			})
			return true
		}
		return false
	})
}

func (v *Validator) linkVerified(link string) bool {
	if v.sourceURLs[dedup.NormalizeURL(link)] {
		return true
	}
	host := hostOf(link)
	if host == "" {
		return false
	}
	for _, domain := range v.allowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func hostOf(link string) string {
	rest := strings.TrimPrefix(strings.TrimPrefix(link, "https://"), "http://")
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(strings.TrimPrefix(rest, "www."))
}

// checkFigures rejects a market block whose numbers are not corroborated by
// any source figure. The whole line goes, never a number in isolation.
func (v *Validator) checkFigures(block, location string, report *core.ValidationReport) string {
	if strings.Contains(block, noMarketDataSentinel) {
		return block
	}
	for _, value := range extractFigures(block) {
		if isYearLike(value) || v.figureVerified(value) {
			continue
		}
		report.Findings = append(report.Findings, core.Finding{
			Location: location,
			Kind:     core.FindingFigure,
			Severity: core.SeverityReject,
			Detail:   fmt.Sprintf("figure %g not corroborated by any source", value),
		})
		return ""
	}
	return block
}

func (v *Validator) figureVerified(value float64) bool {
	for _, source := range v.sourceFigures {
		if figuresMatch(value, source) {
			return true
		}
	}
	return false
}

// figuresMatch applies the tolerance rule: same sign, relative difference at
// most figureTolerance of the larger magnitude.
func figuresMatch(a, b float64) bool {
	if a == b {
		return true
	}
	if (a > 0) != (b > 0) {
		return false
	}
	larger := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= figureTolerance*larger
}

// isYearLike exempts calendar years from the figure check; market lines
// routinely carry dates that no source "figure" corroborates.
func isYearLike(value float64) bool {
	return value == float64(int(value)) && value >= 1900 && value <= 2100
}

// extractFigures pulls every numeric value out of a text, dropping currency
// symbols, thousands separators and percent signs.
func extractFigures(text string) []float64 {
	var figures []float64
	for _, match := range figurePattern.FindAllString(text, -1) {
		cleaned := strings.NewReplacer("$", "", ",", "", "%", "").Replace(match)
		value, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		figures = append(figures, value)
	}
	return figures
}

// stripSentences removes each sentence for which drop returns true and
// rejoins the remainder.
func stripSentences(block string, drop func(string) bool) string {
	sentences := splitSentences(block)
	var kept []string
	for _, s := range sentences {
		if !drop(s) {
			kept = append(kept, s)
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// splitSentences breaks a block on terminal punctuation followed by
// whitespace. Dots inside URLs or figures never precede whitespace, so they
// do not split.
func splitSentences(block string) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(block)
	for i := 0; i < len(runes); i++ {
		b.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(b.String()); s != "" {
					sentences = append(sentences, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
