package utils

import "fmt"

// ErrorKind buckets pipeline failures by recovery strategy.
type ErrorKind string

const (
	// KindValidation covers malformed/out-of-range/stale readings; recovered
	// locally by dropping the reading and counting the rejection.
	KindValidation ErrorKind = "validation"
	// KindModelTraining covers insufficient or degenerate training data; the
	// engine stays in its current phase.
	KindModelTraining ErrorKind = "model_training"
	// KindPersistence covers store unavailability; writes are retried with
	// backoff while live queries keep serving from cache.
	KindPersistence ErrorKind = "persistence"
	// KindDispatch covers unreachable notification channels; retried up to a
	// budget, then surfaced as an undelivered alert.
	KindDispatch ErrorKind = "dispatch"
	// KindConfiguration covers invalid config on reload; the previous valid
	// snapshot remains active.
	KindConfiguration ErrorKind = "configuration"
)

// AppError wraps an operation, classification, message, and underlying error.
type AppError struct {
	Op   string
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs a classified AppError.
func NewAppError(op string, kind ErrorKind, msg string, err error) error {
	return &AppError{Op: op, Kind: kind, Msg: msg, Err: err}
}
