// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

// The rule-based agents work without a model: they match narrative
// keywords and table row labels against a fixed topic vocabulary. They
// serve offline runs and give the pipeline a deterministic baseline.

// topicKeywords maps each topic key to the lowercase phrases that signal
// it in narrative text.
var topicKeywords = map[string][]string{
	"revenue":       {"revenue", "net sales", "sales increased", "sales decreased"},
	"profitability": {"gross profit", "net earnings", "net income", "operating earnings", "profit margin"},
	"liquidity":     {"liquidity", "cash and cash equivalents", "working capital", "current assets", "current liabilities"},
	"debt":          {"long-term debt", "total liabilities", "debt to equity", "borrowings", "credit facility"},
	"cash_flow":     {"operating activities", "investing activities", "financing activities", "free cash flow"},
}

// rowLabelTopics maps lowercase table row-label fragments to topic keys,
// following the row vocabulary of the FINDSum corpus tables.
var rowLabelTopics = map[string]string{
	"revenue":                   "revenue",
	"sales":                     "revenue",
	"gross profit":              "profitability",
	"net earnings":              "profitability",
	"net income":                "profitability",
	"operating earnings":        "profitability",
	"total current assets":      "liquidity",
	"total current liabilities": "liquidity",
	"cash and cash equivalents": "liquidity",
	"inventories":               "liquidity",
	"accounts receivable":       "liquidity",
	"total liabilities":         "debt",
	"long-term debt":            "debt",
	"total stockholders equity": "debt",
	"operating activities":      "cash_flow",
	"investing activities":      "cash_flow",
	"financing activities":      "cash_flow",
}

// RuleExtractor matches segments against the topic vocabulary.
type RuleExtractor struct{}

func (a *RuleExtractor) Extract(_ context.Context, doc *types.Document) (*types.ExtractionResult, error) {
	result := &types.ExtractionResult{
		DocumentID: doc.ID,
		Topics:     make(map[string][]types.Citation),
	}

	for _, seg := range doc.Text {
		lower := strings.ToLower(seg.Text)
		for topic, keywords := range topicKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					result.Topics[topic] = append(result.Topics[topic], types.Citation{
						SegmentID: seg.SegmentID,
						Excerpt:   excerptAround(seg.Text, kw),
					})
					break
				}
			}
		}
	}

	for _, seg := range doc.Tables {
		for _, row := range seg.Rows {
			if len(row) == 0 {
				continue
			}
			label := strings.ToLower(row[0])
			for fragment, topic := range rowLabelTopics {
				if strings.Contains(label, fragment) {
					result.Topics[topic] = append(result.Topics[topic], types.Citation{
						SegmentID: seg.SegmentID,
						Excerpt:   strings.Join(row, " | "),
					})
					break
				}
			}
		}
	}

	return result, nil
}

// excerptAround returns the sentence of text containing the first match
// of keyword, or a prefix of the segment when no sentence break is found.
func excerptAround(text, keyword string) string {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, keyword)
	if idx < 0 {
		idx = 0
	}
	start := strings.LastIndex(lower[:idx], ". ")
	if start < 0 {
		start = 0
	} else {
		start += 2
	}
	end := strings.Index(lower[idx:], ". ")
	if end < 0 {
		end = len(text)
	} else {
		end += idx + 1
	}
	excerpt := strings.TrimSpace(text[start:end])
	const maxExcerpt = 240
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt]
	}
	return excerpt
}

// RuleSummarizer renders one section per extracted topic from its
// citations.
type RuleSummarizer struct{}

func (a *RuleSummarizer) Summarize(_ context.Context, extraction *types.ExtractionResult) (*types.DraftSummary, error) {
	sections := make(map[string]string, len(extraction.Topics))
	citationSet := make(map[string]bool)

	for _, topic := range extraction.TopicKeys() {
		cites := extraction.Topics[topic]
		parts := make([]string, 0, len(cites))
		for _, c := range cites {
			parts = append(parts, c.Excerpt)
			citationSet[c.SegmentID] = true
		}
		sections[topic] = fmt.Sprintf("%s: the filing reports %s",
			topicHeading(topic), strings.Join(parts, "; "))
	}

	citations := make([]string, 0, len(citationSet))
	for id := range citationSet {
		citations = append(citations, id)
	}
	sort.Strings(citations)

	return &types.DraftSummary{
		DocumentID: extraction.DocumentID,
		Sections:   sections,
		Citations:  citations,
		Version:    0,
	}, nil
}

// topicHeading renders a topic key as a readable heading.
func topicHeading(topic string) string {
	words := strings.Split(strings.ReplaceAll(topic, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// RuleCritic applies fixed structural checks to a draft: empty sections
// are critical, very short ones minor.
type RuleCritic struct{}

// minSectionLength is the shortest section the critic accepts without a
// minor style issue.
const minSectionLength = 40

func (a *RuleCritic) Critique(_ context.Context, draft *types.DraftSummary) (*types.Critique, error) {
	critique := &types.Critique{TargetVersion: draft.Version}

	for _, topic := range draft.TopicKeys() {
		text := strings.TrimSpace(draft.Sections[topic])
		switch {
		case text == "":
			critique.Issues = append(critique.Issues, types.Issue{
				Severity:    types.SeverityCritical,
				Description: fmt.Sprintf("section %q is empty", topic),
				Topic:       topic,
			})
		case len(text) < minSectionLength:
			critique.Issues = append(critique.Issues, types.Issue{
				Severity:    types.SeverityMinor,
				Description: fmt.Sprintf("section %q is too short to be informative", topic),
				Topic:       topic,
			})
		}
	}
	if len(draft.Citations) == 0 {
		critique.Issues = append(critique.Issues, types.Issue{
			Severity:    types.SeverityMajor,
			Description: "draft cites no source segments",
		})
	}
	return critique, nil
}

// RuleReviser pads flagged sections with a provenance note; sections
// without issues are untouched.
type RuleReviser struct{}

func (a *RuleReviser) Revise(_ context.Context, draft *types.DraftSummary, critique *types.Critique) (*types.DraftSummary, error) {
	sections := make(map[string]string, len(draft.Sections))
	for k, v := range draft.Sections {
		sections[k] = v
	}
	for _, issue := range critique.Issues {
		if issue.Topic == "" {
			continue
		}
		text := sections[issue.Topic]
		if strings.TrimSpace(text) == "" {
			text = fmt.Sprintf("%s: no narrative disclosure was found for this topic.", topicHeading(issue.Topic))
		} else {
			text += fmt.Sprintf(" (See source segments %s.)", strings.Join(draft.Citations, ", "))
		}
		sections[issue.Topic] = text
	}
	return &types.DraftSummary{
		DocumentID: draft.DocumentID,
		Sections:   sections,
		Citations:  append([]string(nil), draft.Citations...),
		Version:    draft.Version + 1,
	}, nil
}
