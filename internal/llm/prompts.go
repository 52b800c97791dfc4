package llm

import (
	"fmt"
	"strings"

	"newsbrief/internal/core"
)

func buildSelectPrompt(articles []core.Article, maxCount int) string {
	var list strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&list, "%d. [%s] %s: %s\n", i, a.Category, a.Title, a.Summary)
	}

	return fmt.Sprintf(`You are a senior news analyst curating a daily briefing for data and
security engineers who also follow US and Japanese equity markets.

From the article list below, pick the %d most important articles.

Selection criteria, in priority order:
1. Articles with concrete numbers, metrics, or CVE identifiers first.
2. Major updates, vulnerabilities, or practices for a modern data stack
   (Kubernetes, Kafka, Spark, dbt, Airflow, BigQuery, Postgres).
3. Direct investment relevance: macro figures, earnings, sector moves.
4. Skip trivia, promotional pieces, and repeats of known stories.
5. Quality over quantity: for similar stories keep only the richest one.

Return ONLY a JSON array of the selected article indices, nothing else.
Example: [0, 3, 5, 7]

Articles (%d total):

%s`, maxCount, len(articles), list.String())
}

func buildBriefPrompt(articles []core.Article, maxSecurityItems int) string {
	var enriched strings.Builder
	for _, a := range articles {
		fmt.Fprintf(&enriched, "### [%s] %s\n- URL: %s\n- Feed summary: %s\n", a.Category, a.Title, a.URL, a.Summary)
		if a.Content != "" {
			fmt.Fprintf(&enriched, "- Article body (excerpt): %s\n", a.Content)
		}
		enriched.WriteString("\n")
	}

	return fmt.Sprintf(`You are a veteran tech journalist writing a daily briefing for data and
security engineers who also invest in US and Japanese equities.

Produce a markdown briefing with EXACTLY these sections, in this order,
each introduced by a "## " header. Keep every header even when a section
has no items; Highlights must never be empty.

## Highlights
The three most important stories. One line each: a bold short title, one
sentence of fact, one sentence of why it matters, then the source link as
[title](url).

## Technology
Up to three topics directly relevant to the reader stack. Name concrete
versions, API changes, or migration steps. Source link required per item.

## Data Engineering
Up to three pipeline/platform topics (dbt, Airflow, Spark, BigQuery, ...).
Concrete tool names and numbers. Source link required per item.

## Security
At most %d items, ordered by impact. Each needs: CVE identifier when one
exists, affected software and versions, severity, and the concrete action
to take. Source link required per item.

## Market
Only figures extracted from the article bodies below: index levels, moves
in percent, FX levels, yields, earnings with tickers. If the articles
contain no concrete figures, write exactly "No verifiable market data in
today's sources." Do not invent or estimate numbers.

## Upcoming
Two or three dated events within the next two weeks. No vague predictions.

Rules:
- Write from the article bodies, not just the feed summaries.
- Every item ends with a markdown link to its source article.
- Do not state any number or fact that is not in the articles below.
- A story used in Highlights must not repeat in other sections.
- No greeting, no closing line. Sections only.

Selected articles (%d, with bodies where available):

%s`, maxSecurityItems, len(articles), enriched.String())
}

func buildRefinePrompt(draft string) string {
	return fmt.Sprintf(`Edit the following daily briefing draft for quality. Apply these checks
and fix every violation:

1. Delete any item without a markdown source link.
2. Replace vague phrasing ("is attracting attention", "remains to be
   seen", "experts warn") with the concrete fact or delete the sentence.
3. Delete any bullet that contains no concrete fact (number, proper noun,
   version, or CVE identifier).
4. If the Market section has no concrete figure, its only content must be
   "No verifiable market data in today's sources."
5. If a story appears in both Highlights and another section, delete it
   from the other section.

Rules:
- Keep the "## " section structure exactly as it is.
- Do not add information that is not in the draft. Never invent numbers.
- Output only the revised briefing, no commentary.

Draft:

%s`, draft)
}

func buildPaperStage1Prompt(p core.PaperCandidate) string {
	return fmt.Sprintf(`You are a tech writer explaining why a classic computer-science paper
still matters. The reader is a working software engineer with 3-5 years
of experience who does not know this subfield.

Paper:
- Title: %s
- Authors: %s
- Year: %d
- Citations: %d
- Field: %s

Abstract:
%s

Write these three markdown sections, each introduced by "### ":

### Prerequisites
Two or three base concepts needed to follow the paper, two or three
sentences each, every concept with one real-world analogy.

### Background and Motivation
The concrete engineering problem of the time, five to eight sentences.
What systems hurt, how existing approaches fell short, why a new idea
was needed.

### Method
Open with a one-sentence TL;DR of the approach. Then the core idea in
five to eight sentences. Close by naming the trade-off: what was gained
and what was given up.

No greeting, no closing line. Sections only.`,
		p.Title, strings.Join(p.Authors, ", "), p.Year, p.CitationCount, p.Category, p.Abstract)
}

func buildPaperStage2Prompt(p core.PaperCandidate, stage1 string) string {
	return fmt.Sprintf(`Continue the explainer for the paper below. The first half is included
for context.

Paper:
- Title: %s
- Year: %d
- Citations: %d
- Field: %s

Abstract:
%s

First half:
%s

Write these three markdown sections, each introduced by "### ":

### Key Contributions
Three to five bullet points, each "**conclusion in bold** - explanation".

### Impact
Five to eight sentences on what this work enabled in later research and
in practice. Name derived systems or products only when certain; do not
guess product names.

### Related Keywords
Five to eight keywords with a one-sentence gloss each, mixing the paper's
own terms with the modern technology they led to.

No greeting, no closing line. Sections only.`,
		p.Title, p.Year, p.CitationCount, p.Category, p.Abstract, stage1)
}
