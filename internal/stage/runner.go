// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stage executes one named pipeline stage: it consults the run
// ledger for an idempotent-resume hit, invokes the stage's agent with
// retry on transient failures, validates the output against the stage's
// policy, and appends a ledger entry per attempt.
package stage

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/finsum-engine/internal/agent"
	"github.com/pdiddy/finsum-engine/internal/events"
	"github.com/pdiddy/finsum-engine/internal/ledger"
	"github.com/pdiddy/finsum-engine/pkg/types"
)

// backoffBase controls the base duration for exponential backoff between
// retries. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// Runner holds the collaborators every stage execution needs.
type Runner struct {
	Ledger *ledger.Store
	Events *events.Emitter

	// MaxRetries is the total number of agent invocations allowed per
	// stage execution (default 3).
	MaxRetries int
}

func (r *Runner) maxRetries() int {
	if r.MaxRetries <= 0 {
		return 3
	}
	return r.MaxRetries
}

func (r *Runner) events() *events.Emitter {
	if r.Events == nil {
		return events.Discard()
	}
	return r.Events
}

// Execute runs one stage for a run. The invoke callback performs the
// agent call; policy validates the produced artifact against the stage's
// acceptance rules (nil policy accepts anything).
//
// A Succeeded ledger entry for (runID, stage, input hash) short-circuits
// execution and rehydrates the recorded artifact. Transient agent
// failures are retried with exponential backoff up to MaxRetries total
// invocations, each recorded as a Failed ledger attempt. Contract
// violations (from the agent or the policy) are not retried here.
//
// The returned StageResult reports StatusRetried instead of
// StatusSucceeded when the artifact was accepted after at least one
// failed invocation; both count as success.
func Execute[In, Out any](
	ctx context.Context,
	r *Runner,
	runID string,
	stageName types.Stage,
	input In,
	invoke func(context.Context, In) (Out, error),
	policy func(Out) error,
) (Out, types.StageResult, error) {
	var zero Out
	started := time.Now()

	inputHash, err := Hash(input)
	if err != nil {
		return zero, failedResult(stageName, 0, err), err
	}

	// Idempotent resume: a prior accepted output for this exact input is
	// returned without re-invoking the agent.
	var cached Out
	if outputHash, hit, err := r.resume(ctx, runID, stageName, inputHash, &cached); err == nil && hit {
		result := types.StageResult{
			Stage:     stageName,
			Status:    types.StatusSucceeded,
			OutputRef: outputHash,
			Attempts:  0,
		}
		r.events().StageResult(runID, result, time.Since(started))
		return cached, result, nil
	}

	var lastErr error
	for attemptNo := 1; attemptNo <= r.maxRetries(); attemptNo++ {
		if attemptNo > 1 {
			backoff := time.Duration(math.Pow(2, float64(attemptNo-2))) * backoffBase
			select {
			case <-ctx.Done():
				return zero, failedResult(stageName, attemptNo-1, ctx.Err()), ctx.Err()
			case <-time.After(backoff):
			}
		}

		attempt, err := r.Ledger.NextAttempt(ctx, runID, stageName)
		if err != nil {
			return zero, failedResult(stageName, attemptNo, err), err
		}

		out, invokeErr := invoke(ctx, input)
		if invokeErr == nil && policy != nil {
			invokeErr = policy(out)
		}

		if invokeErr == nil {
			outputHash, payload, err := encodeOutput(out)
			if err != nil {
				return zero, failedResult(stageName, attemptNo, err), err
			}
			entry := types.LedgerEntry{
				RunID:      runID,
				Stage:      stageName,
				Attempt:    attempt,
				InputHash:  inputHash,
				OutputHash: outputHash,
				Status:     types.StatusSucceeded,
			}
			if err := r.Ledger.Append(ctx, entry, payload); err != nil {
				return zero, failedResult(stageName, attemptNo, err), err
			}

			status := types.StatusSucceeded
			if attemptNo > 1 {
				status = types.StatusRetried
			}
			result := types.StageResult{
				Stage:     stageName,
				Status:    status,
				OutputRef: outputHash,
				Attempts:  attemptNo,
			}
			r.events().StageResult(runID, result, time.Since(started))
			return out, result, nil
		}

		lastErr = invokeErr
		entry := types.LedgerEntry{
			RunID:     runID,
			Stage:     stageName,
			Attempt:   attempt,
			InputHash: inputHash,
			Status:    types.StatusFailed,
		}
		if err := r.Ledger.Append(ctx, entry, nil); err != nil {
			return zero, failedResult(stageName, attemptNo, err), err
		}

		// Contract violations have no repair path at this level.
		if !agent.IsUnavailable(invokeErr) {
			result := failedResult(stageName, attemptNo, invokeErr)
			r.events().StageResult(runID, result, time.Since(started))
			return zero, result, invokeErr
		}
	}

	err = fmt.Errorf("%s stage failed after %d attempts: %w", stageName, r.maxRetries(), lastErr)
	result := failedResult(stageName, r.maxRetries(), err)
	r.events().StageResult(runID, result, time.Since(started))
	return zero, result, err
}

// resume looks for a Succeeded entry matching the input hash and decodes
// its stored artifact into out. It returns the output hash and whether
// the cache hit.
func (r *Runner) resume(ctx context.Context, runID string, stageName types.Stage, inputHash string, out any) (string, bool, error) {
	entry, err := r.Ledger.Lookup(ctx, runID, stageName, inputHash)
	if err != nil || entry == nil {
		return "", false, err
	}
	payload, err := r.Ledger.Payload(ctx, entry.OutputHash)
	if err != nil || payload == nil {
		// A missing payload forces re-execution rather than failing the run.
		return "", false, err
	}
	if err := yaml.Unmarshal(payload, out); err != nil {
		return "", false, nil
	}
	return entry.OutputHash, true, nil
}

// encodeOutput serializes an accepted artifact and computes its hash.
func encodeOutput(out any) (string, []byte, error) {
	outputHash, err := Hash(out)
	if err != nil {
		return "", nil, err
	}
	payload, err := yaml.Marshal(out)
	if err != nil {
		return "", nil, fmt.Errorf("marshaling stage output: %w", err)
	}
	return outputHash, payload, nil
}

func failedResult(stageName types.Stage, attempts int, err error) types.StageResult {
	return types.StageResult{
		Stage:       stageName,
		Status:      types.StatusFailed,
		Attempts:    attempts,
		ErrorDetail: err.Error(),
	}
}
