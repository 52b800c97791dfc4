// Package llm wraps the external summarizer behind mode-tagged calls. Every
// response is parsed and schema-checked at this boundary; anything that does
// not conform is reported as malformed, never passed along as partial data.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/genai"

	"newsbrief/internal/core"
	"newsbrief/internal/logger"
)

const (
	// DefaultModel is the default Gemini model for briefing generation.
	DefaultModel = "gemini-2.0-flash"
	// DefaultTimeout bounds a single summarizer round-trip.
	DefaultTimeout = 60 * time.Second
	// maxAttempts is the total number of tries per call: the first attempt
	// plus exactly one retry.
	maxAttempts = 2
)

// Client is a Gemini-backed summarizer.
type Client struct {
	modelName string
	timeout   time.Duration
	gClient   *genai.Client
}

// NewClient creates a Gemini summarizer client. The API key must be non-empty;
// callers without a key should use NewPassthrough instead.
func NewClient(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("summarizer API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName: modelName,
		timeout:   timeout,
		gClient:   gClient,
	}, nil
}

// generate performs bounded summarizer round-trips with the one-retry
// policy. The optional check callback validates the response schema, so a
// malformed response consumes an attempt exactly like a timeout does.
func (c *Client) generate(ctx context.Context, prompt string, check func(string) error) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	return generateWithRetry(ctx, c.timeout, func(callCtx context.Context) (string, error) {
		resp, err := c.gClient.Models.GenerateContent(callCtx, c.modelName, contents, nil)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}, check)
}

// generateWithRetry drives up to maxAttempts calls. Transport errors,
// timeouts, empty responses, and schema-check failures all count as a failed
// attempt; the last error is returned when attempts run out.
func generateWithRetry(ctx context.Context, timeout time.Duration, call func(context.Context) (string, error), check func(string) error) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		raw, err := call(callCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				lastErr = fmt.Errorf("%w: %v", core.ErrSummarizerTimeout, err)
			} else {
				lastErr = fmt.Errorf("summarizer call failed: %w", err)
			}
			logger.Warn("Summarizer call failed", "attempt", attempt, "error", err.Error())
			continue
		}

		text := strings.TrimSpace(raw)
		if text == "" {
			lastErr = fmt.Errorf("%w: empty response", core.ErrSummarizerMalformed)
			logger.Warn("Summarizer returned empty response", "attempt", attempt)
			continue
		}

		if check != nil {
			if err := check(text); err != nil {
				lastErr = err
				logger.Warn("Summarizer response failed schema check", "attempt", attempt, "error", err.Error())
				continue
			}
		}
		return text, nil
	}
	return "", lastErr
}

// Select asks the summarizer to pick the most important articles. The result
// is bounds-checked and capped at maxCount; a response that cannot be parsed
// into indices is malformed.
func (c *Client) Select(ctx context.Context, articles []core.Article, maxCount int) (core.SelectionResult, error) {
	prompt := buildSelectPrompt(articles, maxCount)

	var indices []int
	response, err := c.generate(ctx, prompt, func(text string) error {
		parsed, err := ParseSelection(text, len(articles))
		if err != nil {
			return err
		}
		indices = parsed
		return nil
	})
	if err != nil {
		return core.SelectionResult{}, err
	}
	if len(indices) > maxCount {
		indices = indices[:maxCount]
	}

	selected := make([]core.Article, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, articles[i])
	}
	return core.SelectionResult{
		Articles:   selected,
		Rationale:  response,
		SelectedAt: time.Now().UTC(),
	}, nil
}

// Brief generates the structured briefing from enriched articles and parses
// it into the fixed section schema at the boundary.
func (c *Client) Brief(ctx context.Context, articles []core.Article, maxSecurityItems int) (core.Briefing, error) {
	prompt := buildBriefPrompt(articles, maxSecurityItems)

	var briefing core.Briefing
	_, err := c.generate(ctx, prompt, func(text string) error {
		parsed, err := ParseBriefingMarkdown(text)
		if err != nil {
			return err
		}
		briefing = parsed
		return nil
	})
	if err != nil {
		return core.Briefing{}, err
	}
	briefing.Model = c.modelName
	briefing.Date = time.Now().UTC()
	return briefing, nil
}

// Refine runs the quality-refinement pass over a draft briefing, preserving
// the section schema. Refinement must not introduce new figures, which the
// downstream validator enforces.
func (c *Client) Refine(ctx context.Context, draft core.Briefing) (core.Briefing, error) {
	prompt := buildRefinePrompt(RenderBriefingMarkdown(draft))

	var refined core.Briefing
	_, err := c.generate(ctx, prompt, func(text string) error {
		parsed, err := ParseBriefingMarkdown(text)
		if err != nil {
			return err
		}
		refined = parsed
		return nil
	})
	if err != nil {
		return core.Briefing{}, err
	}
	refined.Model = c.modelName
	refined.Date = draft.Date
	return refined, nil
}

// PaperSummary produces the two-stage explainer for a research paper:
// prerequisites/background/method first, then contributions/impact/keywords
// with the first stage as context.
func (c *Client) PaperSummary(ctx context.Context, paper core.PaperCandidate) (string, error) {
	stage1, err := c.generate(ctx, buildPaperStage1Prompt(paper), nil)
	if err != nil {
		return "", err
	}

	stage2, err := c.generate(ctx, buildPaperStage2Prompt(paper, stage1), nil)
	if err != nil {
		return "", err
	}

	return stage1 + "\n\n" + stage2, nil
}

var selectionArrayRe = regexp.MustCompile(`\[[\d\s,]*\]`)

// ParseSelection extracts a JSON index array from a selection response and
// bounds-checks every index against the candidate count. Duplicates are
// dropped, order is preserved.
func ParseSelection(response string, candidateCount int) ([]int, error) {
	match := selectionArrayRe.FindString(response)
	if match == "" {
		return nil, fmt.Errorf("%w: no index array in selection response", core.ErrSummarizerMalformed)
	}

	var indices []int
	if err := json.Unmarshal([]byte(match), &indices); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSummarizerMalformed, err)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: selection response picked nothing", core.ErrSummarizerMalformed)
	}

	seen := make(map[int]bool)
	valid := make([]int, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= candidateCount || seen[i] {
			continue
		}
		seen[i] = true
		valid = append(valid, i)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: selection indices all out of range", core.ErrSummarizerMalformed)
	}
	return valid, nil
}

// sectionHeaders maps the markdown headers of the briefing schema to section
// names. Matching is case-insensitive on the header text.
var sectionHeaders = map[string]string{
	"highlights":       core.SectionHighlights,
	"technology":       core.SectionTechnology,
	"data engineering": core.SectionDataEngineering,
	"security":         core.SectionSecurity,
	"market":           core.SectionMarket,
	"upcoming":         core.SectionUpcoming,
}

// ParseBriefingMarkdown parses summarizer output into the fixed section
// schema. Unknown sections are malformed; a briefing without a non-empty
// highlights section is malformed. Blocks are paragraph-level units split on
// blank lines.
func ParseBriefingMarkdown(text string) (core.Briefing, error) {
	var briefing core.Briefing
	var current *core.Section

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimRight(rawLine, " \t")
		if strings.HasPrefix(line, "## ") {
			header := normalizeHeader(strings.TrimPrefix(line, "## "))
			name, ok := sectionHeaders[header]
			if !ok {
				return core.Briefing{}, fmt.Errorf("%w: unknown briefing section %q", core.ErrSummarizerMalformed, header)
			}
			if briefing.Section(name) != nil {
				return core.Briefing{}, fmt.Errorf("%w: duplicate briefing section %q", core.ErrSummarizerMalformed, name)
			}
			briefing.Sections = append(briefing.Sections, core.Section{Name: name})
			current = &briefing.Sections[len(briefing.Sections)-1]
			continue
		}
		if current == nil {
			continue // Preamble before the first section is dropped.
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		current.Blocks = append(current.Blocks, strings.TrimSpace(line))
	}

	highlights := briefing.Section(core.SectionHighlights)
	if highlights == nil || len(highlights.Blocks) == 0 {
		return core.Briefing{}, fmt.Errorf("%w: briefing has no highlights", core.ErrSummarizerMalformed)
	}
	return briefing, nil
}

// normalizeHeader strips emoji and decoration from a section header, keeping
// only letters, digits and single spaces.
func normalizeHeader(header string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(header) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '-' || r == '_':
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// displayHeaders maps section names back to their markdown headers.
var displayHeaders = map[string]string{
	core.SectionHighlights:      "Highlights",
	core.SectionTechnology:      "Technology",
	core.SectionDataEngineering: "Data Engineering",
	core.SectionSecurity:        "Security",
	core.SectionMarket:          "Market",
	core.SectionUpcoming:        "Upcoming",
}

// RenderBriefingMarkdown converts a structured briefing back to markdown in
// the fixed section order.
func RenderBriefingMarkdown(b core.Briefing) string {
	var sb strings.Builder
	for _, name := range core.SectionOrder {
		section := b.Section(name)
		if section == nil || len(section.Blocks) == 0 {
			continue
		}
		sb.WriteString("## " + displayHeaders[name] + "\n\n")
		for _, block := range section.Blocks {
			sb.WriteString(block + "\n\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}
