package playground

import (
	"time"

	"github.com/caffeineduck/rplay/capture"
)

// Result is the outcome of one Run. Error is set iff Success is false.
// Output may also be set on failure when some output was captured before
// the error. Images is empty unless Success is true.
type Result struct {
	ID              string          `json:"id"`
	Success         bool            `json:"success"`
	Output          string          `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
	Images          []capture.Image `json:"images,omitempty"`
	Truncated       bool            `json:"truncated,omitempty"`
	ExecutionTimeMs int64           `json:"executionTimeMs"`
	Duration        time.Duration   `json:"-"`

	// Err is the underlying error for errors.Is checks.
	Err error `json:"-"`
}

func (r Result) fail(err error) Result {
	r.Success = false
	r.Err = err
	r.Error = err.Error()
	return r
}
