package worker

import "errors"

// ErrTimeout marks an attempt that ran past its execution time limit. The
// task is forced to FAILED regardless of partial progress and is never
// retried.
var ErrTimeout = errors.New("execution time limit exceeded")

// TransientError wraps failures worth retrying: accelerator out-of-memory
// and transient storage I/O. Anything else is treated as permanent and
// fails the task immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// transient wraps err as retryable. A nil err stays nil.
func transient(err error) error {
	if err == nil {
		return nil
	}

	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
