// Package outcome describes the result of a dual write where one write is the
// primary record and the others are best-effort maintenance.
//
// A caller that only cares whether the user-facing requirement was met checks
// Committed. Tests and operators that care about partial failure check
// Degraded and inspect Failures.
package outcome

import (
	"errors"
	"strings"
)

// Failure records one secondary step that did not complete.
type Failure struct {
	Step string
	Err  error
}

// Outcome is the result of a primary write plus zero or more secondary writes.
type Outcome struct {
	// Primary is nil when the primary write committed.
	Primary error
	// Failures lists secondary steps that failed after the primary committed.
	Failures []Failure
	// Pending is set when secondary writes were handed off and their result is
	// not known to the caller.
	Pending bool
}

// Committed reports whether the primary write succeeded.
func (o Outcome) Committed() bool {
	return o.Primary == nil
}

// Degraded reports whether the primary committed but at least one secondary
// step failed.
func (o Outcome) Degraded() bool {
	return o.Primary == nil && len(o.Failures) > 0
}

// Fail appends a secondary failure. A nil err is ignored so callers can pass
// step results straight through.
func (o *Outcome) Fail(step string, err error) {
	if err == nil {
		return
	}
	o.Failures = append(o.Failures, Failure{Step: step, Err: err})
}

// FailedSteps returns the names of the failed secondary steps in order.
func (o Outcome) FailedSteps() []string {
	steps := make([]string, 0, len(o.Failures))
	for _, f := range o.Failures {
		steps = append(steps, f.Step)
	}
	return steps
}

// Err joins the primary error and every secondary failure. It returns nil
// only for a fully successful write.
func (o Outcome) Err() error {
	errs := make([]error, 0, len(o.Failures)+1)
	if o.Primary != nil {
		errs = append(errs, o.Primary)
	}
	for _, f := range o.Failures {
		errs = append(errs, stepError{f})
	}
	return errors.Join(errs...)
}

type stepError struct{ f Failure }

func (e stepError) Error() string { return e.f.Step + ": " + e.f.Err.Error() }
func (e stepError) Unwrap() error { return e.f.Err }

// String renders a compact summary for logs.
func (o Outcome) String() string {
	switch {
	case o.Primary != nil:
		return "failed"
	case o.Pending:
		return "pending"
	case len(o.Failures) > 0:
		return "degraded(" + strings.Join(o.FailedSteps(), ",") + ")"
	default:
		return "ok"
	}
}
