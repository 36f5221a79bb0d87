// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"sort"
	"time"
)

// Stage names the pipeline phases in execution order.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageSummarize Stage = "summarize"
	StageRefine    Stage = "refine"
)

// Citation links an extracted finding back to a source segment.
type Citation struct {
	// SegmentID is the supporting segment in the source document.
	SegmentID string `json:"segment_id" yaml:"segment_id"`

	// Excerpt is the supporting text or table row, verbatim.
	Excerpt string `json:"excerpt" yaml:"excerpt"`
}

// ExtractionResult maps topic keys (e.g. "revenue", "liquidity") to the
// citations that support them. Produced by the extract stage and consumed
// read-only downstream.
type ExtractionResult struct {
	DocumentID string                `json:"document_id" yaml:"document_id"`
	Topics     map[string][]Citation `json:"topics" yaml:"topics"`
}

// TopicKeys returns the topic keys in sorted order.
func (r *ExtractionResult) TopicKeys() []string {
	keys := make([]string, 0, len(r.Topics))
	for k := range r.Topics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Empty reports whether the extraction produced no topics.
func (r *ExtractionResult) Empty() bool {
	return len(r.Topics) == 0
}

// DraftSummary is one version of the narrative summary. Versions are
// never mutated; each refinement pass produces a new value with the
// version incremented by exactly one.
type DraftSummary struct {
	DocumentID string `json:"document_id" yaml:"document_id"`

	// Sections maps topic key to narrative text.
	Sections map[string]string `json:"sections" yaml:"sections"`

	// Citations lists the segment IDs the narrative draws on, sorted.
	Citations []string `json:"citations" yaml:"citations"`

	// Version starts at 0 for the summarize stage's draft and increments
	// on each accepted revision.
	Version int `json:"version" yaml:"version"`
}

// TopicKeys returns the section topic keys in sorted order.
func (s *DraftSummary) TopicKeys() []string {
	keys := make([]string, 0, len(s.Sections))
	for k := range s.Sections {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Severity ranks a critique issue.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for threshold comparisons. Unknown
// severities rank below minor.
var severityRank = map[Severity]int{
	SeverityMinor:    1,
	SeverityMajor:    2,
	SeverityCritical: 3,
}

// Rank returns the numeric order of the severity (minor=1 .. critical=3).
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at or above the threshold severity.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// Issue is a single problem a critique found with a draft.
type Issue struct {
	Severity    Severity `json:"severity" yaml:"severity" validate:"required,oneof=minor major critical"`
	Description string   `json:"description" yaml:"description" validate:"required"`
	Topic       string   `json:"topic" yaml:"topic"`
}

// Critique is the critique phase's judgement of one draft version.
type Critique struct {
	// TargetVersion is the draft version the critique examined.
	TargetVersion int `json:"target_version" yaml:"target_version"`

	// Issues lists problems in the order the critic raised them. An empty
	// list means the draft is accepted as-is.
	Issues []Issue `json:"issues" yaml:"issues" validate:"dive"`
}

// MaxSeverity returns the highest severity among the issues, or the empty
// severity when there are none.
func (c *Critique) MaxSeverity() Severity {
	var max Severity
	for _, is := range c.Issues {
		if is.Severity.Rank() > max.Rank() {
			max = is.Severity
		}
	}
	return max
}

// CountAtLeast returns how many issues are at or above the threshold.
func (c *Critique) CountAtLeast(threshold Severity) int {
	n := 0
	for _, is := range c.Issues {
		if is.Severity.AtLeast(threshold) {
			n++
		}
	}
	return n
}

// ReportInsight is the pipeline's terminal artifact: the accepted summary
// for one document, written exactly once per successful run.
type ReportInsight struct {
	DocumentID string `json:"document_id" yaml:"document_id"`

	// Summaries maps topic key to the final narrative for that topic.
	Summaries map[string]string `json:"summaries" yaml:"summaries"`

	// Citations lists the source segment IDs the summaries draw on.
	Citations []string `json:"citations" yaml:"citations"`

	// Confidence is 1.0 for converged runs and lower when refinement
	// exhausted its budget with issues outstanding.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// RefinementIterations counts accepted critique-revise cycles.
	RefinementIterations int `json:"refinement_iterations" yaml:"refinement_iterations"`

	// LedgerRef names the run whose ledger stream backs this insight.
	LedgerRef string `json:"ledger_ref" yaml:"ledger_ref"`
}

// StageStatus is the outcome of one stage attempt.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusRetried   StageStatus = "retried"
)

// StageResult reports a stage runner's outcome to the controller.
type StageResult struct {
	Stage Stage `json:"stage" yaml:"stage"`

	Status StageStatus `json:"status" yaml:"status"`

	// OutputRef is the content hash of the accepted artifact, empty on
	// failure.
	OutputRef string `json:"output_ref,omitempty" yaml:"output_ref,omitempty"`

	// Attempts is the number of agent invocations the stage made.
	Attempts int `json:"attempts" yaml:"attempts"`

	// ErrorDetail describes the failure, empty on success.
	ErrorDetail string `json:"error_detail,omitempty" yaml:"error_detail,omitempty"`
}

// LedgerEntry is one append-only record of a stage attempt.
type LedgerEntry struct {
	RunID string `json:"run_id" yaml:"run_id"`

	Stage Stage `json:"stage" yaml:"stage"`

	// Attempt numbers attempts per (run, stage) starting at 1.
	Attempt int `json:"attempt" yaml:"attempt"`

	// InputHash is the canonical hash of the stage's input artifact.
	InputHash string `json:"input_hash" yaml:"input_hash"`

	// OutputHash is the canonical hash of the accepted output, empty for
	// failed attempts.
	OutputHash string `json:"output_hash,omitempty" yaml:"output_hash,omitempty"`

	Status StageStatus `json:"status" yaml:"status"`

	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}
