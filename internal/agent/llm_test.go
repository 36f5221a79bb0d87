// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

// cannedCompleter returns a fixed response and records the prompts it saw.
type cannedCompleter struct {
	response string
	err      error
	system   string
	user     string
}

func (c *cannedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.system = system
	c.user = user
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"topics": {}}`, `{"topics": {}}`},
		{"json fence", "```json\n{\"topics\": {}}\n```", `{"topics": {}}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}\n", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}

func TestLLMExtractorParsesResponse(t *testing.T) {
	completer := &cannedCompleter{response: `{
		"topics": {
			"revenue": [{"segment_id": "rpt-1-txt-000", "excerpt": "Revenue grew 8%."}]
		}
	}`}
	extractor := &LLMExtractor{Completer: completer}

	doc := &types.Document{
		ID:   "rpt-1",
		Text: []types.TextSegment{{SegmentID: "rpt-1-txt-000", Text: "Revenue grew 8%."}},
	}
	result, err := extractor.Extract(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "rpt-1", result.DocumentID)
	require.Len(t, result.Topics["revenue"], 1)
	assert.Equal(t, "rpt-1-txt-000", result.Topics["revenue"][0].SegmentID)
	// The prompt carries the segment text tagged with its ID.
	assert.Contains(t, completer.user, "[rpt-1-txt-000]")
	assert.NotEmpty(t, completer.system)
}

func TestLLMExtractorRejectsMalformedResponse(t *testing.T) {
	extractor := &LLMExtractor{Completer: &cannedCompleter{response: "I could not process that."}}
	doc := &types.Document{ID: "rpt-1", Text: []types.TextSegment{{SegmentID: "s0", Text: "x"}}}

	_, err := extractor.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, IsContractViolation(err))
	assert.False(t, IsUnavailable(err))
}

func TestLLMExtractorPropagatesTransportError(t *testing.T) {
	extractor := &LLMExtractor{Completer: &cannedCompleter{err: Unavailable(fmt.Errorf("503"))}}
	doc := &types.Document{ID: "rpt-1", Text: []types.TextSegment{{SegmentID: "s0", Text: "x"}}}

	_, err := extractor.Extract(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestLLMSummarizerDraftsVersionZero(t *testing.T) {
	completer := &cannedCompleter{response: `{
		"sections": {"revenue": "Revenue grew on volume."},
		"citations": ["s2", "s1", "s2"]
	}`}
	summarizer := &LLMSummarizer{Completer: completer}

	extraction := &types.ExtractionResult{
		DocumentID: "rpt-1",
		Topics: map[string][]types.Citation{
			"revenue": {{SegmentID: "s1", Excerpt: "Revenue grew."}},
		},
	}
	draft, err := summarizer.Summarize(context.Background(), extraction)
	require.NoError(t, err)

	assert.Equal(t, 0, draft.Version)
	assert.Equal(t, "rpt-1", draft.DocumentID)
	assert.Equal(t, []string{"s1", "s2"}, draft.Citations)
}

func TestLLMCriticTargetsDraftVersion(t *testing.T) {
	completer := &cannedCompleter{response: `{
		"issues": [{"severity": "major", "description": "liquidity uncovered", "topic": "liquidity"}]
	}`}
	critic := &LLMCritic{Completer: completer}

	draft := &types.DraftSummary{DocumentID: "rpt-1", Sections: map[string]string{"revenue": "x"}, Version: 2}
	critique, err := critic.Critique(context.Background(), draft)
	require.NoError(t, err)

	assert.Equal(t, 2, critique.TargetVersion)
	require.Len(t, critique.Issues, 1)
	assert.Equal(t, types.SeverityMajor, critique.Issues[0].Severity)
}

func TestLLMCriticRejectsUnknownSeverity(t *testing.T) {
	completer := &cannedCompleter{response: `{
		"issues": [{"severity": "catastrophic", "description": "x"}]
	}`}
	critic := &LLMCritic{Completer: completer}

	_, err := critic.Critique(context.Background(), &types.DraftSummary{DocumentID: "rpt-1"})
	require.Error(t, err)
	assert.True(t, IsContractViolation(err))
}

func TestLLMReviserBumpsVersionAndInheritsCitations(t *testing.T) {
	completer := &cannedCompleter{response: `{
		"sections": {"revenue": "Revenue grew on volume and price."}
	}`}
	reviser := &LLMReviser{Completer: completer}

	draft := &types.DraftSummary{
		DocumentID: "rpt-1",
		Sections:   map[string]string{"revenue": "Revenue grew."},
		Citations:  []string{"s1", "s3"},
		Version:    1,
	}
	critique := &types.Critique{
		TargetVersion: 1,
		Issues:        []types.Issue{{Severity: types.SeverityMajor, Description: "thin", Topic: "revenue"}},
	}

	revised, err := reviser.Revise(context.Background(), draft, critique)
	require.NoError(t, err)

	assert.Equal(t, 2, revised.Version)
	assert.Equal(t, "rpt-1", revised.DocumentID)
	// A response without citations keeps the prior draft's.
	assert.Equal(t, []string{"s1", "s3"}, revised.Citations)
}

func TestNewSuiteSelectsProvider(t *testing.T) {
	suite, err := NewSuite(context.Background(), types.AgentConfig{Provider: types.ProviderRules})
	require.NoError(t, err)
	assert.IsType(t, &RuleExtractor{}, suite.Extractor)

	suite, err = NewSuite(context.Background(), types.AgentConfig{Provider: types.ProviderClaude, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &LLMExtractor{}, suite.Extractor)

	_, err = NewSuite(context.Background(), types.AgentConfig{Provider: "oracle"})
	require.Error(t, err)
}
