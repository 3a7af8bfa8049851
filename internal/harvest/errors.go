package harvest

import (
	"errors"
	"fmt"
)

// Error classes surfaced by the pipeline. Callers match them with errors.Is.
var (
	// ErrRetrieval marks a transient network or HTTP fault that survived the retry budget.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrParse marks a malformed page or content structure. Never retried.
	ErrParse = errors.New("parse failed")
	// ErrValidation marks metadata that cannot be stored.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks an I/O failure creating containers or writing records.
	ErrStorage = errors.New("storage fault")
	// ErrInvalidPeriod marks a period or period range the catalog cannot serve.
	ErrInvalidPeriod = errors.New("invalid period")
)

// RetrievalError carries the target URL of a fetch that exhausted its attempts.
type RetrievalError struct {
	URL      string
	Attempts int
	Err      error
}

// Error implements error.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes the last attempt's error.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRetrieval) match.
func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrieval
}
