package validate

import (
	"strings"
	"testing"

	"newsbrief/internal/core"
)

func testSources() []core.Article {
	return []core.Article{
		{
			URL:           "https://kafka.apache.org/blog/kafka-4-0",
			NormalizedURL: "https://kafka.apache.org/blog/kafka-4-0",
			Title:         "Kafka 4.0 released",
			Summary:       "KRaft is now the default metadata mode.",
		},
		{
			URL:     "https://www.marketwatch.example/sp500",
			Title:   "Markets close mixed",
			Content: "The S&P 500 closed at 5801.4, up 0.3% on the day.",
		},
	}
}

func marketBriefing(blocks ...string) core.Briefing {
	return core.Briefing{
		Sections: []core.Section{
			{Name: core.SectionHighlights, Blocks: []string{"A quiet day overall."}},
			{Name: core.SectionMarket, Blocks: blocks},
		},
	}
}

func TestLinkValidation(t *testing.T) {
	v := New(testSources(), []string{"nvd.nist.gov"}, nil)

	briefing := core.Briefing{
		Sections: []core.Section{
			{Name: core.SectionHighlights, Blocks: []string{
				"Kafka 4.0 shipped, see https://kafka.apache.org/blog/kafka-4-0 for details. Full writeup at https://evil.example/steal is available too.",
			}},
			{Name: core.SectionSecurity, Blocks: []string{
				"CVE-2025-1234 details at https://nvd.nist.gov/vuln/detail/CVE-2025-1234.",
			}},
		},
	}

	cleaned, report := v.Run(briefing)

	if !report.HasRejects() {
		t.Fatal("Expected a reject finding for the unknown link")
	}
	block := cleaned.Section(core.SectionHighlights).Blocks[0]
	if strings.Contains(block, "evil.example") {
		t.Errorf("Offending sentence survived: %s", block)
	}
	if !strings.Contains(block, "kafka.apache.org") {
		t.Errorf("Verified source link was stripped: %s", block)
	}
	if len(cleaned.Section(core.SectionSecurity).Blocks) != 1 {
		t.Error("Allow-listed advisory link must survive")
	}

	var linkFindings int
	for _, f := range report.Findings {
		if f.Kind == core.FindingLink && f.Severity == core.SeverityReject {
			linkFindings++
		}
	}
	if linkFindings != 1 {
		t.Errorf("Expected 1 link reject finding, got %d", linkFindings)
	}
}

func TestMarketFigureTolerance(t *testing.T) {
	tests := []struct {
		name       string
		block      string
		wantKept   bool
		wantReject bool
	}{
		{
			name:     "within tolerance",
			block:    "S&P 500 closed at 5800, modest gains across tech.",
			wantKept: true,
		},
		{
			name:     "exact sourced figure",
			block:    "S&P 500 closed at 5801.4.",
			wantKept: true,
		},
		{
			name:       "fabricated figure",
			block:      "S&P 500 closed at 9000, a record high.",
			wantKept:   false,
			wantReject: true,
		},
		{
			name:     "no-data sentinel",
			block:    "No verifiable market data in today's sources.",
			wantKept: true,
		},
		{
			name:     "sourced percentage",
			block:    "Index gained 0.3% on the session.",
			wantKept: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(testSources(), nil, nil)
			cleaned, report := v.Run(marketBriefing(tt.block))

			blocks := cleaned.Section(core.SectionMarket).Blocks
			if tt.wantKept && len(blocks) != 1 {
				t.Errorf("Expected block kept, got %v (findings: %+v)", blocks, report.Findings)
			}
			if !tt.wantKept && len(blocks) != 0 {
				t.Errorf("Expected block removed, got %v", blocks)
			}
			if tt.wantReject != report.HasRejects() {
				t.Errorf("HasRejects = %v, want %v (findings: %+v)", report.HasRejects(), tt.wantReject, report.Findings)
			}
		})
	}
}

func TestBannedPhraseExcision(t *testing.T) {
	banned := []string{"is attracting attention", "remains to be seen"}
	v := New(testSources(), nil, banned)

	briefing := core.Briefing{
		Sections: []core.Section{
			{Name: core.SectionHighlights, Blocks: []string{
				"Kafka 4.0 removes ZooKeeper. Whether operators migrate quickly remains to be seen. Upgrade guides are published.",
			}},
		},
	}

	cleaned, report := v.Run(briefing)

	block := cleaned.Section(core.SectionHighlights).Blocks[0]
	if strings.Contains(strings.ToLower(block), "remains to be seen") {
		t.Errorf("Banned phrase survived: %s", block)
	}
	if !strings.Contains(block, "removes ZooKeeper") || !strings.Contains(block, "Upgrade guides") {
		t.Errorf("Healthy sentences were lost: %s", block)
	}

	found := false
	for _, f := range report.Findings {
		if f.Kind == core.FindingBannedPhrase && f.Severity == core.SeverityReject {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a reject finding for the excised phrase, got %+v", report.Findings)
	}
}

func TestEmptyReportAlwaysProduced(t *testing.T) {
	v := New(testSources(), nil, nil)
	_, report := v.Run(marketBriefing())

	if report.GeneratedAt.IsZero() {
		t.Error("Report must carry a generation timestamp even when empty")
	}
	if len(report.Findings) != 0 {
		t.Errorf("Expected no findings on a clean briefing, got %+v", report.Findings)
	}
}

func TestYearNotTreatedAsFigure(t *testing.T) {
	v := New(testSources(), nil, nil)
	cleaned, report := v.Run(marketBriefing("Markets were calm heading into the 2025 earnings season."))

	if len(cleaned.Section(core.SectionMarket).Blocks) != 1 {
		t.Errorf("Year-only line must survive the figure check: %+v", report.Findings)
	}
}

func TestFiguresMatch(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{5800, 5801.4, true},
		{9000, 5801.4, false},
		{0.3, 0.3, true},
		{-2.5, 2.5, false},
		{100, 101, true},
		{100, 103, false},
	}
	for _, tt := range tests {
		if got := figuresMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("figuresMatch(%g, %g) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
