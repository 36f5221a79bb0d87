// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

func sampleDocument() *types.Document {
	return &types.Document{
		ID: "rpt-2024",
		Text: []types.TextSegment{
			{
				SegmentID: "rpt-2024-txt-000",
				Ordinal:   0,
				Text:      "Revenue increased 12% driven by subscription growth. Operating costs held flat.",
			},
			{
				SegmentID: "rpt-2024-txt-001",
				Ordinal:   1,
				Text:      "The board declared a quarterly dividend.",
			},
		},
		Tables: []types.TableSegment{
			{
				SegmentID: "rpt-2024-tbl-bs-00",
				Ordinal:   2,
				Rows: [][]string{
					{"", "2024", "2023"},
					{"Total current assets", "1,200", "1,050"},
					{"Long-term debt", "430", "515"},
				},
				SchemaHints: []string{"balance_sheet"},
			},
		},
	}
}

func TestRuleExtractorMatchesTextAndTables(t *testing.T) {
	extractor := &RuleExtractor{}
	result, err := extractor.Extract(context.Background(), sampleDocument())
	require.NoError(t, err)

	assert.Equal(t, "rpt-2024", result.DocumentID)
	require.Contains(t, result.Topics, "revenue")
	require.Contains(t, result.Topics, "liquidity")
	require.Contains(t, result.Topics, "debt")

	rev := result.Topics["revenue"]
	require.Len(t, rev, 1)
	assert.Equal(t, "rpt-2024-txt-000", rev[0].SegmentID)
	assert.Contains(t, rev[0].Excerpt, "Revenue increased 12%")
	// The excerpt stops at the sentence break.
	assert.NotContains(t, rev[0].Excerpt, "Operating costs")

	liq := result.Topics["liquidity"]
	require.Len(t, liq, 1)
	assert.Equal(t, "rpt-2024-tbl-bs-00", liq[0].SegmentID)
	assert.Contains(t, liq[0].Excerpt, "Total current assets")

	// The dividend segment matches no topic vocabulary.
	for _, cites := range result.Topics {
		for _, c := range cites {
			assert.NotEqual(t, "rpt-2024-txt-001", c.SegmentID)
		}
	}
}

func TestRuleExtractorEmptyDocumentYieldsNoTopics(t *testing.T) {
	extractor := &RuleExtractor{}
	result, err := extractor.Extract(context.Background(), &types.Document{
		ID:   "rpt-empty",
		Text: []types.TextSegment{{SegmentID: "s0", Ordinal: 0, Text: "Unrelated prose."}},
	})
	require.NoError(t, err)
	assert.True(t, result.Empty())
}

func TestRuleSummarizerCoversEveryTopic(t *testing.T) {
	extractor := &RuleExtractor{}
	extraction, err := extractor.Extract(context.Background(), sampleDocument())
	require.NoError(t, err)

	summarizer := &RuleSummarizer{}
	draft, err := summarizer.Summarize(context.Background(), extraction)
	require.NoError(t, err)

	assert.Equal(t, 0, draft.Version)
	assert.Equal(t, "rpt-2024", draft.DocumentID)
	for _, topic := range extraction.TopicKeys() {
		assert.NotEmpty(t, draft.Sections[topic], "missing section for %s", topic)
	}
	assert.Equal(t, []string{"rpt-2024-tbl-bs-00", "rpt-2024-txt-000"}, draft.Citations)
}

func TestRuleCriticFlagsStructuralProblems(t *testing.T) {
	critic := &RuleCritic{}

	clean := &types.DraftSummary{
		DocumentID: "rpt-1",
		Sections: map[string]string{
			"revenue": "Revenue rose on broad subscription strength across all regions.",
		},
		Citations: []string{"s1"},
		Version:   2,
	}
	critique, err := critic.Critique(context.Background(), clean)
	require.NoError(t, err)
	assert.Equal(t, 2, critique.TargetVersion)
	assert.Empty(t, critique.Issues)

	flawed := &types.DraftSummary{
		DocumentID: "rpt-1",
		Sections: map[string]string{
			"revenue":   "",
			"liquidity": "Cash fine.",
		},
	}
	critique, err = critic.Critique(context.Background(), flawed)
	require.NoError(t, err)
	require.Len(t, critique.Issues, 3)
	assert.Equal(t, types.SeverityCritical, critique.MaxSeverity())
	assert.Equal(t, 2, critique.CountAtLeast(types.SeverityMajor))
}

func TestRuleReviserAddressesFlaggedSections(t *testing.T) {
	reviser := &RuleReviser{}
	draft := &types.DraftSummary{
		DocumentID: "rpt-1",
		Sections:   map[string]string{"revenue": "", "debt": "Leverage declined."},
		Citations:  []string{"s1", "s2"},
		Version:    1,
	}
	critique := &types.Critique{
		TargetVersion: 1,
		Issues: []types.Issue{
			{Severity: types.SeverityCritical, Description: "empty", Topic: "revenue"},
			{Severity: types.SeverityMinor, Description: "short", Topic: "debt"},
		},
	}

	revised, err := reviser.Revise(context.Background(), draft, critique)
	require.NoError(t, err)

	assert.Equal(t, 2, revised.Version)
	assert.NotEmpty(t, revised.Sections["revenue"])
	assert.Contains(t, revised.Sections["debt"], "s1, s2")
	// The original draft is untouched.
	assert.Empty(t, draft.Sections["revenue"])
}

func TestTopicHeading(t *testing.T) {
	assert.Equal(t, "Cash Flow", topicHeading("cash_flow"))
	assert.Equal(t, "Revenue", topicHeading("revenue"))
}

func TestExcerptAroundTruncatesLongSentences(t *testing.T) {
	long := "Revenue " + strings.Repeat("grew and grew ", 40) + "without pause"
	excerpt := excerptAround(long, "revenue")
	assert.LessOrEqual(t, len(excerpt), 240)
	assert.True(t, strings.HasPrefix(excerpt, "Revenue"))
}
