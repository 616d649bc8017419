package ebsapi

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"
)

// ErrSnapshotNotFound indicates a snapshot referenced by a request does
// not exist (deleted, or not yet completed). Terminal: retrying will not
// make the snapshot appear.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// TransientError marks a remote failure as retryable (throttling,
// timeouts, transport errors). Tasks retry these with backoff up to
// their retry budget.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient remote failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// throttleCodes are the API error codes treated as rate limiting.
var throttleCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"RequestLimitExceeded":      true,
	"RequestThrottled":          true,
	"RequestThrottledException": true,
	"TooManyRequestsException":  true,
}

// classify wraps remote errors into the task error taxonomy: throttling
// and deadline errors become TransientError, everything else passes
// through unchanged for the caller to map.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}

	var ae smithy.APIError
	if errors.As(err, &ae) && throttleCodes[ae.ErrorCode()] {
		return &TransientError{Err: err}
	}

	return err
}
