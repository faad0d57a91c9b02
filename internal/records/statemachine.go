package records

import (
	"errors"
	"fmt"
	"time"
)

// Status lifecycle: pending -> processing -> {completed | failed}.
// failed -> processing is allowed only through Begin (operator retry path).
//
// The in-memory transition is only half of the guard: callers must persist the
// transition with Store.UpdateWhereStatus keyed on the prior status. Two
// workers racing Begin on the same row both pass here; exactly one conditional
// update lands, and the loser treats the zero-row result as "already claimed".

var ErrInvalidTransition = errors.New("records: invalid status transition")

// Begin claims the record for processing. It returns the prior status so the
// caller can issue the conditional update against it.
func Begin(r *Record, now time.Time) (Status, error) {
	prior := r.Status
	switch prior {
	case StatusPending:
		// first attempt
	case StatusFailed:
		r.RetryCount++
	default:
		return "", fmt.Errorf("%w: begin from %q", ErrInvalidTransition, prior)
	}
	r.Status = StatusProcessing
	t := now.UTC()
	r.LastAttemptAt = &t
	return prior, nil
}

// Complete records a successful transcription+analysis run.
func Complete(r *Record, res CompletionResult, now time.Time) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: complete from %q", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusCompleted
	transcript := res.Transcript
	analysis := res.Analysis
	r.Transcript = &transcript
	r.Analysis = &analysis
	r.Model = res.Model
	r.InputTokens = res.InputTokens
	r.OutputTokens = res.OutputTokens
	r.FailureReason = ""
	t := now.UTC()
	r.ProcessedAt = &t
	return nil
}

// Fail records an unsuccessful attempt. Any transcript/analysis captured
// before the failure is kept.
func Fail(r *Record, reason string) error {
	if r.Status != StatusProcessing {
		return fmt.Errorf("%w: fail from %q", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusFailed
	r.FailureReason = reason
	return nil
}
