package engine

import (
	"errors"
	"fmt"
)

// ErrDestroyed is wrapped by the WorkerError returned once an engine has been
// destroyed.
var ErrDestroyed = errors.New("engine destroyed")

// WorkerError reports that the worker behind an engine is gone. Every call
// outstanding when the worker failed is rejected with the same error.
type WorkerError struct {
	Err error
}

func (e *WorkerError) Error() string {
	if e.Err == nil {
		return "worker unavailable"
	}
	return fmt.Sprintf("worker unavailable: %v", e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
