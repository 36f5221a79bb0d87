// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks a transient agent failure: the backing service
// errored or timed out and the call may be retried. Wrap with
// Unavailable; test with errors.Is.
var ErrUnavailable = errors.New("agent unavailable")

// Unavailable wraps err as a transient, retryable agent failure.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// IsUnavailable reports whether err is a transient agent failure. Context
// deadline expiry counts: a timed-out call is indistinguishable from an
// unavailable service to the caller.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// ContractViolation reports that an agent returned an artifact that fails
// the stage's structural or semantic validation policy. It is not
// retryable except where the stage defines a repair path.
type ContractViolation struct {
	// Capability names the call that produced the bad artifact.
	Capability string

	// Reason describes the violation.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ContractViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s contract violation: %s: %v", e.Capability, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s contract violation: %s", e.Capability, e.Reason)
}

func (e *ContractViolation) Unwrap() error {
	return e.Err
}

// Violation constructs a ContractViolation for the named capability.
func Violation(capability, reason string, err error) error {
	return &ContractViolation{Capability: capability, Reason: reason, Err: err}
}

// IsContractViolation reports whether err carries a ContractViolation.
func IsContractViolation(err error) bool {
	var v *ContractViolation
	return errors.As(err, &v)
}
