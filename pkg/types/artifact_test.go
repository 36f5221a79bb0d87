// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityMajor))
	assert.True(t, SeverityMajor.AtLeast(SeverityMajor))
	assert.False(t, SeverityMinor.AtLeast(SeverityMajor))
	// An unknown severity never crosses a real threshold.
	assert.False(t, Severity("bogus").AtLeast(SeverityMinor))
}

func TestCritiqueAggregates(t *testing.T) {
	critique := &Critique{
		TargetVersion: 1,
		Issues: []Issue{
			{Severity: SeverityMinor, Description: "terse"},
			{Severity: SeverityCritical, Description: "empty section"},
			{Severity: SeverityMajor, Description: "no citations"},
		},
	}
	assert.Equal(t, SeverityCritical, critique.MaxSeverity())
	assert.Equal(t, 2, critique.CountAtLeast(SeverityMajor))
	assert.Equal(t, 3, critique.CountAtLeast(SeverityMinor))

	empty := &Critique{TargetVersion: 0}
	assert.Equal(t, Severity(""), empty.MaxSeverity())
	assert.Equal(t, 0, empty.CountAtLeast(SeverityMinor))
}

func TestExtractionResultTopicKeysSorted(t *testing.T) {
	result := &ExtractionResult{
		DocumentID: "rpt-1",
		Topics: map[string][]Citation{
			"revenue":   {{SegmentID: "s1"}},
			"debt":      {{SegmentID: "s2"}},
			"liquidity": {{SegmentID: "s3"}},
		},
	}
	assert.Equal(t, []string{"debt", "liquidity", "revenue"}, result.TopicKeys())
	assert.False(t, result.Empty())
	assert.True(t, (&ExtractionResult{DocumentID: "rpt-2"}).Empty())
}

func TestPipelineConfigNormalizeDefaults(t *testing.T) {
	var cfg PipelineConfig
	cfg.Normalize()

	assert.Equal(t, ProviderRules, cfg.Agent.Provider)
	assert.Equal(t, 3, cfg.Agent.MaxRetries)
	assert.Equal(t, 3, cfg.Refine.MaxIterations)
	assert.Equal(t, SeverityMajor, cfg.Refine.SeverityThreshold)
	assert.Equal(t, 2, cfg.Refine.StableIterations)
	assert.Equal(t, 4, cfg.Workers)
	assert.NoError(t, cfg.Validate())
}
