// Package r provides the R language adapter for rplay.
//
// The adapter runs either a WASM build of R (webR's R.wasm, see
// internal/tools/download) inside the executor's wazero runtime, or a host
// Rscript binary when one is configured with [WithRscript]. Both run the
// same prelude, so sessions behave identically.
package r

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
)

//go:embed prelude.R
var prelude string

// ErrNoModule is returned by Module when neither a module path nor module
// bytes were configured.
var ErrNoModule = errors.New("no R wasm module configured")

// R implements the executor.Language interface for R.
type R struct {
	modulePath string
	rscript    string

	once    sync.Once
	module  []byte
	loadErr error
}

// Option configures an R adapter.
type Option func(*R)

// WithModule loads the R interpreter from a .wasm file on first use.
func WithModule(path string) Option {
	return func(r *R) {
		r.modulePath = path
	}
}

// WithModuleBytes uses an already loaded R interpreter module.
func WithModuleBytes(wasm []byte) Option {
	return func(r *R) {
		r.module = wasm
	}
}

// WithRscript runs sessions as host processes of the given Rscript binary
// instead of the WASM module.
func WithRscript(path string) Option {
	return func(r *R) {
		r.rscript = path
	}
}

// New returns an R language adapter.
func New(opts ...Option) *R {
	r := &R{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns "r".
func (r *R) Name() string {
	return "r"
}

// Module returns the R WASM binary.
func (r *R) Module() ([]byte, error) {
	r.once.Do(func() {
		if r.module != nil {
			return
		}
		if r.modulePath == "" {
			r.loadErr = ErrNoModule
			return
		}
		r.module, r.loadErr = os.ReadFile(r.modulePath)
	})
	return r.module, r.loadErr
}

// Prelude returns the R program implementing the session loop.
func (r *R) Prelude() string {
	return prelude
}

// Args returns the command-line arguments for the WASM interpreter.
func (r *R) Args(prelude string) []string {
	return []string{"R", "--vanilla", "--no-echo", "-e", prelude}
}

// Command returns the Rscript invocation, or nil when sessions should use
// the WASM module.
func (r *R) Command(prelude string) []string {
	if r.rscript == "" {
		return nil
	}
	return []string{r.rscript, "--vanilla", "-e", prelude}
}

// Native reports whether sessions run as host processes.
func (r *R) Native() bool {
	return r.rscript != ""
}

// Assign returns R code binding value to name in the global environment.
func (r *R) Assign(name string, value any) (string, error) {
	lit, err := Literal(value)
	if err != nil {
		return "", fmt.Errorf("assign %s: %w", name, err)
	}
	return fmt.Sprintf("assign(%s, %s, envir = globalenv())", strconv.Quote(name), lit), nil
}
