// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refine implements the bounded critique-revise loop inside the
// refine stage. The loop is a state machine with a pure transition
// function; agents plug in behind the Critic and Reviser contracts so the
// machine can be tested with canned critiques.
package refine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pdiddy/finsum-engine/internal/agent"
	"github.com/pdiddy/finsum-engine/internal/events"
	"github.com/pdiddy/finsum-engine/internal/stage"
	"github.com/pdiddy/finsum-engine/pkg/types"
)

// State names the refinement loop's phases.
type State string

const (
	StateDrafting   State = "drafting"
	StateCritiquing State = "critiquing"
	StateRevising   State = "revising"
	StateConverged  State = "converged"
	StateExhausted  State = "exhausted"
)

// Terminal reports whether the state ends the loop.
func (s State) Terminal() bool {
	return s == StateConverged || s == StateExhausted
}

// Event is an observation that drives a state transition.
type Event string

const (
	// EventStart begins critiquing the initial draft.
	EventStart Event = "start"
	// EventCritiqueClean means the critique raised no issues.
	EventCritiqueClean Event = "critique_clean"
	// EventCritiqueStable means issues stayed below the severity
	// threshold for the configured number of consecutive critiques.
	EventCritiqueStable Event = "critique_stable"
	// EventCritiqueIssues means the critique raised actionable issues.
	EventCritiqueIssues Event = "critique_issues"
	// EventRevised means a revision produced a genuinely new version.
	EventRevised Event = "revised"
	// EventRevisionNoop means the revision changed nothing and the
	// triggering critique held no blocking issues.
	EventRevisionNoop Event = "revision_noop"
	// EventRevisionStalled means the revision changed nothing while
	// blocking issues remain outstanding.
	EventRevisionStalled Event = "revision_stalled"
	// EventBudgetExhausted means the iteration budget ran out.
	EventBudgetExhausted Event = "budget_exhausted"
	// EventAgentFailure means critique or revise failed; the loop falls
	// back to the last known-good version.
	EventAgentFailure Event = "agent_failure"
)

// transitions is the state machine table. Unknown (state, event) pairs
// resolve to Exhausted, the safe terminal.
var transitions = map[State]map[Event]State{
	StateDrafting: {
		EventStart: StateCritiquing,
	},
	StateCritiquing: {
		EventCritiqueClean:   StateConverged,
		EventCritiqueStable:  StateConverged,
		EventCritiqueIssues:  StateRevising,
		EventBudgetExhausted: StateExhausted,
		EventAgentFailure:    StateExhausted,
	},
	StateRevising: {
		EventRevised:         StateCritiquing,
		EventRevisionNoop:    StateConverged,
		EventRevisionStalled: StateExhausted,
		EventAgentFailure:    StateExhausted,
	},
}

// Transition is the pure transition function (state, event) → state.
func Transition(s State, e Event) State {
	if next, ok := transitions[s][e]; ok {
		return next
	}
	return StateExhausted
}

// Outcome is the loop's terminal report. Both terminal states yield a
// usable draft; Exhausted carries a confidence penalty.
type Outcome struct {
	// Final is the accepted draft version.
	Final *types.DraftSummary

	// State is the terminal state, Converged or Exhausted.
	State State

	// Iterations counts accepted critique-revise cycles.
	Iterations int

	// Unresolved is the number of issues outstanding at termination.
	Unresolved int

	// Confidence is 1.0 for Converged, reduced for Exhausted.
	Confidence float64

	// Versions retains every draft version in order for audit.
	Versions []*types.DraftSummary
}

// backoffBase scales the retry backoff; tests shrink it.
var backoffBase = time.Second

// Loop runs bounded critique-revise refinement over a draft summary.
type Loop struct {
	Critic  agent.Critic
	Reviser agent.Reviser
	Config  types.RefineConfig
	Events  *events.Emitter

	// MaxRetries bounds per-call retries of transient agent failures.
	// Zero means the default of 3.
	MaxRetries int

	// Confidence overrides the default penalty policy when set.
	Confidence func(state State, unresolved int) float64
}

func (l *Loop) maxRetries() int {
	if l.MaxRetries > 0 {
		return l.MaxRetries
	}
	return 3
}

// withRetry runs call up to maxRetries times, backing off between
// attempts. Only transient unavailability is retried; contract
// violations and other errors surface immediately.
func (l *Loop) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= l.maxRetries(); attempt++ {
		if attempt > 1 {
			wait := time.Duration(math.Pow(2, float64(attempt-2))) * backoffBase
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if !agent.IsUnavailable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (l *Loop) events() *events.Emitter {
	if l.Events == nil {
		return events.Discard()
	}
	return l.Events
}

// Run refines draft until convergence or budget exhaustion. Transient
// agent failures are retried with bounded backoff; persistent failures
// degrade to the last known-good version rather than erroring: a
// worse-but-present summary beats an aborted run. Run returns an error
// only on context cancellation.
func (l *Loop) Run(ctx context.Context, runID string, draft *types.DraftSummary) (*Outcome, error) {
	cfg := l.Config
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.SeverityThreshold == "" {
		cfg.SeverityThreshold = types.SeverityMajor
	}
	if cfg.StableIterations <= 0 {
		cfg.StableIterations = 2
	}

	state := StateDrafting
	current := draft
	versions := []*types.DraftSummary{draft}
	iterations := 0
	stableRuns := 0
	unresolved := 0

	step := func(e Event) {
		next := Transition(state, e)
		l.events().RefineTransition(runID, string(state), string(next), current.Version)
		state = next
	}
	step(EventStart)

	for !state.Terminal() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var critique *types.Critique
		err := l.withRetry(ctx, func() error {
			var callErr error
			critique, callErr = l.Critic.Critique(ctx, current)
			return callErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Retries exhausted or contract violation; fall back to
			// the last known-good version.
			unresolved++
			step(EventAgentFailure)
			break
		}
		if critique.TargetVersion != current.Version {
			unresolved++
			step(EventAgentFailure)
			break
		}
		unresolved = len(critique.Issues)

		if len(critique.Issues) == 0 {
			step(EventCritiqueClean)
			break
		}
		if critique.CountAtLeast(cfg.SeverityThreshold) == 0 {
			stableRuns++
			if stableRuns >= cfg.StableIterations {
				step(EventCritiqueStable)
				break
			}
		} else {
			stableRuns = 0
		}
		if iterations >= cfg.MaxIterations {
			step(EventBudgetExhausted)
			break
		}

		step(EventCritiqueIssues)

		var revised *types.DraftSummary
		err = l.withRetry(ctx, func() error {
			var callErr error
			revised, callErr = l.Reviser.Revise(ctx, current, critique)
			return callErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			step(EventAgentFailure)
			break
		}
		if err := validRevision(current, revised); err != nil {
			step(EventAgentFailure)
			break
		}
		same, err := sameContent(current, revised)
		if err != nil || same {
			// A revision that changes nothing is not a new version.
			// Converge only if the outstanding issues were all below
			// the severity threshold; a stalled revision over a
			// blocking critique terminates with reduced confidence.
			if err == nil && critique.CountAtLeast(cfg.SeverityThreshold) == 0 {
				step(EventRevisionNoop)
			} else {
				step(EventRevisionStalled)
			}
			break
		}

		current = revised
		versions = append(versions, revised)
		iterations++
		step(EventRevised)
	}

	return &Outcome{
		Final:      current,
		State:      state,
		Iterations: iterations,
		Unresolved: terminalUnresolved(state, unresolved),
		Confidence: l.confidence(state, terminalUnresolved(state, unresolved)),
		Versions:   versions,
	}, nil
}

// terminalUnresolved zeroes the outstanding-issue count for converged
// runs: remaining sub-threshold issues were judged acceptable.
func terminalUnresolved(state State, unresolved int) int {
	if state == StateConverged {
		return 0
	}
	if unresolved < 1 {
		return 1
	}
	return unresolved
}

// confidence applies the configured penalty policy.
func (l *Loop) confidence(state State, unresolved int) float64 {
	if l.Confidence != nil {
		return l.Confidence(state, unresolved)
	}
	if state == StateConverged {
		return 1.0
	}
	penalty := l.Config.PenaltyPerIssue
	if penalty <= 0 {
		penalty = 0.1
	}
	floor := l.Config.ConfidenceFloor
	if floor <= 0 {
		floor = 0.2
	}
	c := 1.0 - penalty*float64(unresolved)
	if c < floor {
		c = floor
	}
	return c
}

// validRevision checks the reviser's version contract: exactly one
// version ahead, same document.
func validRevision(current, revised *types.DraftSummary) error {
	if revised == nil {
		return fmt.Errorf("reviser returned nil draft")
	}
	if revised.Version != current.Version+1 {
		return fmt.Errorf("revision version %d does not follow %d", revised.Version, current.Version)
	}
	if revised.DocumentID != current.DocumentID {
		return fmt.Errorf("revision switched document from %s to %s", current.DocumentID, revised.DocumentID)
	}
	return nil
}

// sameContent compares two drafts ignoring their version numbers.
func sameContent(a, b *types.DraftSummary) (bool, error) {
	type content struct {
		Sections  map[string]string
		Citations []string
	}
	ha, err := stage.Hash(content{a.Sections, a.Citations})
	if err != nil {
		return false, err
	}
	hb, err := stage.Hash(content{b.Sections, b.Citations})
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}
