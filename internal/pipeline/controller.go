// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the extract, summarize, and refine stages
// for one document and owns the run's terminal artifact.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/finsum-engine/internal/agent"
	"github.com/pdiddy/finsum-engine/internal/document"
	"github.com/pdiddy/finsum-engine/internal/events"
	"github.com/pdiddy/finsum-engine/internal/ledger"
	"github.com/pdiddy/finsum-engine/internal/refine"
	"github.com/pdiddy/finsum-engine/internal/stage"
	"github.com/pdiddy/finsum-engine/pkg/types"
)

// Failure reports which stage sank a run and why. Refinement never
// produces one: its degraded outcomes still yield an insight.
type Failure struct {
	Stage types.Stage
	Cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", f.Stage, f.Cause)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Controller drives a document through the three stages, journaling each
// attempt in the ledger so interrupted runs resume instead of repeating
// agent work.
type Controller struct {
	Agents *agent.Suite
	Ledger *ledger.Store
	Events *events.Emitter
	Config types.PipelineConfig
}

func New(agents *agent.Suite, store *ledger.Store, emitter *events.Emitter, cfg types.PipelineConfig) *Controller {
	cfg.Normalize()
	return &Controller{
		Agents: agents,
		Ledger: store,
		Events: emitter,
		Config: cfg,
	}
}

func (c *Controller) events() *events.Emitter {
	if c.Events == nil {
		return events.Discard()
	}
	return c.Events
}

func (c *Controller) runner() *stage.Runner {
	return &stage.Runner{
		Ledger:     c.Ledger,
		Events:     c.Events,
		MaxRetries: c.Config.Agent.MaxRetries,
	}
}

// refineArtifact is the ledger payload for the refine stage. Recording
// the whole outcome lets a resumed run skip refinement entirely.
type refineArtifact struct {
	Final      *types.DraftSummary `yaml:"final"`
	State      string              `yaml:"state"`
	Iterations int                 `yaml:"iterations"`
	Unresolved int                 `yaml:"unresolved"`
	Confidence float64             `yaml:"confidence"`
}

// Run processes one document end to end. An empty runID gets a fresh
// UUID; callers that pass a stable runID get idempotent resume across
// process restarts. Extract and summarize failures abort the run with a
// *Failure; refinement degradation does not.
func (c *Controller) Run(ctx context.Context, runID string, doc *types.Document) (*types.ReportInsight, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	started := time.Now()

	if doc == nil {
		return nil, &document.LoadError{Ref: "", Err: fmt.Errorf("nil document")}
	}
	if err := doc.Validate(); err != nil {
		c.events().RunOutcome(runID, doc.ID, "rejected", time.Since(started))
		return nil, &document.LoadError{Ref: doc.ID, Err: err}
	}

	runner := c.runner()

	extraction, _, err := stage.Execute(ctx, runner, runID, types.StageExtract, doc,
		func(ctx context.Context, d *types.Document) (*types.ExtractionResult, error) {
			return c.Agents.Extractor.Extract(ctx, d)
		},
		extractPolicy(doc))
	if err != nil {
		c.events().RunOutcome(runID, doc.ID, "failed", time.Since(started))
		return nil, &Failure{Stage: types.StageExtract, Cause: err}
	}

	draft, _, err := stage.Execute(ctx, runner, runID, types.StageSummarize, extraction,
		func(ctx context.Context, ex *types.ExtractionResult) (*types.DraftSummary, error) {
			return c.Agents.Summarizer.Summarize(ctx, ex)
		},
		summaryPolicy(doc, extraction))
	if err != nil {
		c.events().RunOutcome(runID, doc.ID, "failed", time.Since(started))
		return nil, &Failure{Stage: types.StageSummarize, Cause: err}
	}

	refined, _, err := stage.Execute(ctx, runner, runID, types.StageRefine, draft,
		func(ctx context.Context, d *types.DraftSummary) (*refineArtifact, error) {
			loop := &refine.Loop{
				Critic:     c.Agents.Critic,
				Reviser:    c.Agents.Reviser,
				Config:     c.Config.Refine,
				Events:     c.Events,
				MaxRetries: c.Config.Agent.MaxRetries,
			}
			outcome, err := loop.Run(ctx, runID, d)
			if err != nil {
				return nil, err
			}
			return &refineArtifact{
				Final:      outcome.Final,
				State:      string(outcome.State),
				Iterations: outcome.Iterations,
				Unresolved: outcome.Unresolved,
				Confidence: outcome.Confidence,
			}, nil
		},
		nil)
	if err != nil {
		// Only context cancellation reaches here: the loop swallows
		// agent failures by degrading to the last accepted version.
		c.events().RunOutcome(runID, doc.ID, "failed", time.Since(started))
		return nil, &Failure{Stage: types.StageRefine, Cause: err}
	}

	insight := &types.ReportInsight{
		DocumentID:           doc.ID,
		Summaries:            refined.Final.Sections,
		Citations:            refined.Final.Citations,
		Confidence:           refined.Confidence,
		RefinementIterations: refined.Iterations,
		LedgerRef:            runID,
	}
	c.events().RunOutcome(runID, doc.ID, refined.State, time.Since(started))
	return insight, nil
}

// RunID derives a stable run identifier from a document ID so repeated
// invocations over the same corpus resume rather than redo.
func RunID(documentID string) string {
	return "run-" + stage.MustHash(documentID)
}
