// Package playground coordinates executions against one R session: it
// enforces a single execution at a time, times each run, normalizes the
// captured output and turns interpreter failures into readable results.
//
//	pg := playground.New(playground.SessionStarter(exec, r.New(r.WithModule(path))))
//	if err := pg.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pg.Close()
//
//	res := pg.Run(ctx, "summary(cars)")
//	fmt.Println(res.Output)
package playground

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/rplay/capture"
	"github.com/caffeineduck/rplay/executor"
	"github.com/google/uuid"
)

var (
	ErrNotReady   = errors.New("interpreter is not ready")
	ErrEmptyInput = errors.New("no code supplied")
	ErrBusy       = errors.New("an execution is already in progress")
	ErrInit       = errors.New("initialize interpreter")
)

// Interpreter is an R session the playground drives. *executor.Session
// implements it.
type Interpreter interface {
	Execute(ctx context.Context, code string, opts capture.Options) (capture.Raw, error)
	Get(ctx context.Context, name string) (any, error)
	Set(ctx context.Context, name string, value any) error
	Reset(ctx context.Context) error
	Ready() bool
	Close() error
}

// Starter creates a ready interpreter.
type Starter func(ctx context.Context) (Interpreter, error)

// SessionStarter returns a Starter that opens executor sessions.
func SessionStarter(exec *executor.Executor, lang executor.Language, opts ...executor.SessionOption) Starter {
	return func(ctx context.Context) (Interpreter, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := exec.NewSession(lang, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Playground owns one interpreter and runs code against it.
type Playground struct {
	start Starter
	cfg   config

	mu      sync.Mutex
	interp  Interpreter
	cancel  context.CancelFunc
	running bool
	closed  bool
}

// New returns a Playground that starts its interpreter with start.
// Call Initialize before Run.
func New(start Starter, opts ...Option) *Playground {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Playground{start: start, cfg: cfg}
}

// Initialize starts the interpreter. It is a no-op when the interpreter is
// already ready, and replaces one that was torn down by a cancellation.
// Start failures wrap ErrInit.
func (p *Playground) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%w: playground closed", ErrInit)
	}
	if p.running {
		return ErrBusy
	}
	if p.interp != nil {
		if p.interp.Ready() {
			return nil
		}
		p.interp.Close()
		p.interp = nil
	}

	start := time.Now()
	interp, err := p.start(ctx)
	if err != nil {
		p.cfg.logger.Error("interpreter failed to start", "err", err)
		return fmt.Errorf("%w: %w", ErrInit, err)
	}
	p.interp = interp
	p.cfg.logger.Info("interpreter ready", "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// Ready reports whether Run can execute code.
func (p *Playground) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyLocked()
}

func (p *Playground) readyLocked() bool {
	return !p.closed && p.interp != nil && p.interp.Ready()
}

// Run executes code and returns its result. Run never returns an error
// value: every failure is reported as a Result with Success false.
func (p *Playground) Run(ctx context.Context, code string) Result {
	res := Result{ID: uuid.NewString()}

	p.mu.Lock()
	if !p.readyLocked() {
		p.mu.Unlock()
		return res.fail(ErrNotReady)
	}
	if strings.TrimSpace(code) == "" {
		p.mu.Unlock()
		return res.fail(ErrEmptyInput)
	}
	if p.running {
		p.mu.Unlock()
		return res.fail(ErrBusy)
	}
	interp := p.interp
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
	}()

	start := time.Now()
	raw, err := p.execute(ctx, interp, code)
	output := capture.Normalize(raw.Items)
	res.Duration = time.Since(start)
	res.ExecutionTimeMs = res.Duration.Round(time.Millisecond).Milliseconds()

	if err != nil {
		res.Err = err
		res.Error = p.cfg.translator.Translate(errorMessage(err))
		res.Output = output
		p.cfg.logger.Debug("execution failed", "run", res.ID, "err", err, "ms", res.ExecutionTimeMs)
		return res
	}

	res.Success = true
	res.Output, res.Truncated = capture.Truncate(output, p.cfg.maxOutput)
	res.Images = raw.Images()
	p.cfg.logger.Debug("execution finished", "run", res.ID, "ms", res.ExecutionTimeMs, "images", len(res.Images))
	return res
}

// execute calls the interpreter, converting a panic into an error.
func (p *Playground) execute(ctx context.Context, interp Interpreter, code string) (raw capture.Raw, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.logger.Error("interpreter panicked", "panic", r)
			err = fmt.Errorf("interpreter panic: %v", r)
		}
	}()
	return interp.Execute(ctx, code, p.cfg.capture)
}

// errorMessage returns the text shown to the user for err.
func errorMessage(err error) string {
	var ie *executor.InterpreterError
	if errors.As(err, &ie) {
		return ie.Message
	}
	return err.Error()
}

// Cancel aborts the in-flight execution, if any. Aborting R mid-evaluation
// tears the session down; call Initialize to start a fresh one.
func (p *Playground) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cfg.logger.Info("cancelling execution")
		p.cancel()
	}
}

// LoadVariable returns the value bound to name in the R global environment,
// or nil when it is not defined.
func (p *Playground) LoadVariable(ctx context.Context, name string) (any, error) {
	interp, err := p.current()
	if err != nil {
		return nil, err
	}
	return interp.Get(ctx, name)
}

// LoadData binds data to name in the R global environment and reports
// whether it succeeded.
func (p *Playground) LoadData(ctx context.Context, name string, data any) bool {
	interp, err := p.current()
	if err != nil {
		p.cfg.logger.Warn("load data", "name", name, "err", err)
		return false
	}
	if err := interp.Set(ctx, name, data); err != nil {
		p.cfg.logger.Warn("load data", "name", name, "err", err)
		return false
	}
	return true
}

// Reset clears the R global environment.
func (p *Playground) Reset(ctx context.Context) error {
	interp, err := p.current()
	if err != nil {
		return err
	}
	return interp.Reset(ctx)
}

func (p *Playground) current() (Interpreter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readyLocked() {
		return nil, ErrNotReady
	}
	if p.running {
		return nil, ErrBusy
	}
	return p.interp, nil
}

// Close cancels any in-flight execution and stops the interpreter.
func (p *Playground) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	interp := p.interp
	p.interp = nil
	p.mu.Unlock()

	if interp != nil {
		return interp.Close()
	}
	return nil
}
