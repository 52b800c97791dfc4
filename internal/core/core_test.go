package core

import (
	"testing"
	"time"
)

func TestEffectivePublishedAt(t *testing.T) {
	published := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	fetched := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

	a := Article{PublishedAt: published, FetchedAt: fetched}
	if got := a.EffectivePublishedAt(); !got.Equal(published) {
		t.Errorf("Expected published time %v, got %v", published, got)
	}

	a.PublishedAt = time.Time{}
	if got := a.EffectivePublishedAt(); !got.Equal(fetched) {
		t.Errorf("Expected fetch-time fallback %v, got %v", fetched, got)
	}
}

func TestBriefingSectionLookup(t *testing.T) {
	b := Briefing{
		Sections: []Section{
			{Name: SectionHighlights, Blocks: []string{"top story"}},
			{Name: SectionMarket, Blocks: []string{"S&P 500 at 5801.4"}},
		},
	}

	sec := b.Section(SectionMarket)
	if sec == nil {
		t.Fatal("Expected market section to be found")
	}
	if len(sec.Blocks) != 1 || sec.Blocks[0] != "S&P 500 at 5801.4" {
		t.Errorf("Unexpected market section blocks: %v", sec.Blocks)
	}

	if b.Section(SectionUpcoming) != nil {
		t.Error("Expected nil for a section that is not present")
	}

	// Mutations through the returned pointer must stick.
	sec.Blocks = append(sec.Blocks, "USD/JPY 155.2")
	if len(b.Section(SectionMarket).Blocks) != 2 {
		t.Error("Expected section mutation to be visible on the briefing")
	}
}

func TestValidationReportHasRejects(t *testing.T) {
	report := ValidationReport{
		Findings: []Finding{
			{Location: "market[0]", Kind: FindingFigure, Severity: SeverityInfo},
		},
	}
	if report.HasRejects() {
		t.Error("Expected no rejects for info-only findings")
	}

	report.Findings = append(report.Findings, Finding{
		Location: "technology[1]",
		Kind:     FindingLink,
		Severity: SeverityReject,
		Detail:   "https://evil.com/y not among source articles",
	})
	if !report.HasRejects() {
		t.Error("Expected HasRejects after adding a reject finding")
	}
}

func TestSectionOrderIsStable(t *testing.T) {
	want := []string{
		SectionHighlights,
		SectionTechnology,
		SectionDataEngineering,
		SectionSecurity,
		SectionMarket,
		SectionUpcoming,
	}
	if len(SectionOrder) != len(want) {
		t.Fatalf("Expected %d sections, got %d", len(want), len(SectionOrder))
	}
	for i, name := range want {
		if SectionOrder[i] != name {
			t.Errorf("Section %d: expected %s, got %s", i, name, SectionOrder[i])
		}
	}
}
