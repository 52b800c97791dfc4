package core

import (
	"errors"
	"time"
)

// Article represents a single feed-derived item after normalization.
type Article struct {
	ID            string    `json:"id"`             // Deterministic identifier derived from the normalized URL
	URL           string    `json:"url"`            // Original URL as published by the feed
	NormalizedURL string    `json:"normalized_url"` // Canonical form used as the primary dedup key
	Title         string    `json:"title"`          // Item title
	SourceName    string    `json:"source_name"`    // Name of the feed source that produced the item
	Category      string    `json:"category"`       // Source category (technology, security, market, ...)
	Priority      int       `json:"priority"`       // Source priority; lower value wins canonical ties
	PublishedAt   time.Time `json:"published_at"`   // Publication time; zero value means the feed gave none
	FetchedAt     time.Time `json:"fetched_at"`     // When the item was retrieved
	Summary       string    `json:"summary"`        // Short description from the feed (may be empty)
	Content       string    `json:"content"`        // Full text, populated lazily during enrichment
}

// EffectivePublishedAt returns the publication time, falling back to the
// fetch time when the feed did not provide one.
func (a Article) EffectivePublishedAt() time.Time {
	if a.PublishedAt.IsZero() {
		return a.FetchedAt
	}
	return a.PublishedAt
}

// DedupCluster is an equivalence class of articles judged to represent the
// same story. Canonical is always a member of Members.
type DedupCluster struct {
	Canonical Article   `json:"canonical"`
	Members   []Article `json:"members"`
}

// SelectionResult is the ordered outcome of the selection stage.
type SelectionResult struct {
	Articles   []Article `json:"articles"`
	Rationale  string    `json:"rationale"` // Opaque explanation returned by the summarizer
	SelectedAt time.Time `json:"selected_at"`
}

// Section names of a briefing, in render order.
const (
	SectionHighlights      = "highlights"
	SectionTechnology      = "technology"
	SectionDataEngineering = "data-engineering"
	SectionSecurity        = "security"
	SectionMarket          = "market"
	SectionUpcoming        = "upcoming"
)

// SectionOrder lists every briefing section in its fixed render order.
var SectionOrder = []string{
	SectionHighlights,
	SectionTechnology,
	SectionDataEngineering,
	SectionSecurity,
	SectionMarket,
	SectionUpcoming,
}

// Briefing is the structured document produced by the briefing stages.
type Briefing struct {
	Date     time.Time `json:"date"`
	Sections []Section `json:"sections"`
	Model    string    `json:"model"` // Model that produced the text, or "passthrough"
}

// Section holds one named briefing section and its ordered text blocks.
type Section struct {
	Name   string   `json:"name"`
	Blocks []string `json:"blocks"`
}

// Section returns a pointer to the named section, or nil when absent.
func (b *Briefing) Section(name string) *Section {
	for i := range b.Sections {
		if b.Sections[i].Name == name {
			return &b.Sections[i]
		}
	}
	return nil
}

// FindingKind classifies a validation finding.
type FindingKind string

const (
	FindingLink         FindingKind = "link"
	FindingFigure       FindingKind = "figure"
	FindingBannedPhrase FindingKind = "banned-phrase"
)

// FindingSeverity is the severity of a validation finding.
type FindingSeverity string

const (
	SeverityInfo   FindingSeverity = "info"
	SeverityReject FindingSeverity = "reject"
)

// Finding is a single validator observation.
type Finding struct {
	Location string          `json:"location"` // Section name and block index, e.g. "market[2]"
	Kind     FindingKind     `json:"kind"`
	Severity FindingSeverity `json:"severity"`
	Detail   string          `json:"detail"`
}

// ValidationReport is the full output of the deterministic validator.
// It is produced on every run, even when empty, so digests stay auditable.
type ValidationReport struct {
	Findings    []Finding `json:"findings"`
	GeneratedAt time.Time `json:"generated_at"`
}

// HasRejects reports whether any finding carries reject severity.
func (r ValidationReport) HasRejects() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityReject {
			return true
		}
	}
	return false
}

// PaperCandidate is a research-paper item from the paper pipeline.
type PaperCandidate struct {
	ArxivID       string   `json:"arxiv_id"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Authors       []string `json:"authors"`
	Year          int      `json:"year"` // 0 when unknown
	CitationCount int      `json:"citation_count"`
	URL           string   `json:"url"`
	PDFURL        string   `json:"pdf_url"`
	Category      string   `json:"category"`
	SeenBefore    bool     `json:"seen_before"` // Looked up against the persisted history
}

// FeedSource describes one configured feed endpoint.
type FeedSource struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Category string `yaml:"category" json:"category"`
	Priority int    `yaml:"priority" json:"priority"` // Lower value = higher priority
}

// FeedStat records the per-source outcome of one fetch batch.
type FeedStat struct {
	Source   string        `json:"source"`
	Fetched  int           `json:"fetched"`
	Err      string        `json:"err,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Error taxonomy. Source-level and validation-level issues are recovered
// locally; summarizer and persistence issues abort the current run but leave
// persisted state consistent for the next attempt.
var (
	ErrSourceUnavailable   = errors.New("feed source unavailable")
	ErrEmptyCandidateSet   = errors.New("no candidates to digest")
	ErrSummarizerTimeout   = errors.New("summarizer call timed out")
	ErrSummarizerMalformed = errors.New("summarizer response malformed")
	ErrPersistenceConflict = errors.New("conflicting buffer access")
)
