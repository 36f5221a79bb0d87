// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package events publishes structured pipeline events for an external
// observability collaborator. Emission is fire-and-forget: the pipeline
// never blocks on or inspects delivery.
package events

import (
	"io"
	"time"

	"github.com/phuslu/log"

	"github.com/pdiddy/finsum-engine/pkg/types"
)

// Emitter writes pipeline events to a structured logger.
type Emitter struct {
	logger log.Logger
}

// New wraps a logger as an event emitter.
func New(logger log.Logger) *Emitter {
	return &Emitter{logger: logger}
}

// Default emits to stderr at info level.
func Default() *Emitter {
	return &Emitter{logger: log.Logger{
		Level:      log.InfoLevel,
		TimeFormat: time.RFC3339,
		Writer:     &log.ConsoleWriter{ColorOutput: false},
	}}
}

// Discard swallows all events; used in tests and as the nil fallback.
func Discard() *Emitter {
	return &Emitter{logger: log.Logger{
		Level:  log.InfoLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}}
}

// StageResult records a completed stage attempt.
func (e *Emitter) StageResult(runID string, result types.StageResult, duration time.Duration) {
	e.logger.Info().
		Str("run_id", runID).
		Str("stage", string(result.Stage)).
		Str("status", string(result.Status)).
		Int("attempts", result.Attempts).
		Dur("duration", duration).
		Msg("stage result")
}

// RefineTransition records one refinement loop state change.
func (e *Emitter) RefineTransition(runID, from, to string, version int) {
	e.logger.Info().
		Str("run_id", runID).
		Str("stage", string(types.StageRefine)).
		Str("from", from).
		Str("to", to).
		Int("version", version).
		Msg("refinement transition")
}

// RunOutcome records a run's terminal state.
func (e *Emitter) RunOutcome(runID, documentID, outcome string, duration time.Duration) {
	e.logger.Info().
		Str("run_id", runID).
		Str("document_id", documentID).
		Str("status", outcome).
		Dur("duration", duration).
		Msg("run finished")
}
