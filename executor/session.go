package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/rplay/capture"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSessionBusy    = errors.New("session busy")
	ErrExecutorClosed = errors.New("executor closed")
	ErrStart          = errors.New("start session")
	ErrCancelled      = errors.New("execution cancelled")
	ErrTimeout        = errors.New("execution timed out")
	ErrExited         = errors.New("interpreter exited")
)

// Session is one running interpreter with a persistent global environment.
// Definitions made by one command stay visible to the next until Reset.
//
// A Session runs one command at a time; a command issued while another is
// in flight fails with ErrSessionBusy. Cancelling a command's context
// terminates the interpreter because R cannot be interrupted through its
// pipes, so the session is no longer Ready afterwards.
type Session struct {
	id     string
	exec   *Executor
	lang   Language
	cfg    sessionConfig
	logger *log.Logger

	stdin    io.WriteCloser
	stdout   *sessionOutput
	protocol *sessionProtocol

	stop     func()
	exited   chan struct{}
	exitOnce sync.Once
	exitErr  error

	mu      sync.Mutex
	execMu  sync.Mutex
	closed  bool
	started bool
}

// NewSession starts an interpreter for lang and waits until it reports
// ready. Start failures wrap ErrStart.
func (e *Executor) NewSession(lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.env["RPLAY_SESSION"] = "1"

	s := &Session{
		id:   uuid.NewString(),
		exec: e,
		lang: lang,
		cfg:  cfg,
	}
	s.logger = cfg.logger.With("session", s.id)

	if err := s.start(); err != nil {
		return nil, err
	}

	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) start() error {
	s.stdout = newSessionOutput()
	s.protocol = newSessionProtocol()
	s.exited = make(chan struct{})

	prelude := s.lang.Prelude()
	argv := nativeCommand(s.lang, prelude)

	var err error
	if argv != nil {
		err = s.startProcess(argv)
	} else {
		err = s.startModule(prelude)
	}
	if err != nil {
		s.teardown()
		return fmt.Errorf("%w: %w", ErrStart, err)
	}

	timeout := s.cfg.startTimeout
	if timeout <= 0 {
		timeout = defaultSessionConfig().startTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.protocol.Ready():
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		s.logger.Debug("session started", "lang", s.lang.Name(), "native", argv != nil)
		return nil
	case <-s.exited:
		s.teardown()
		return fmt.Errorf("%w: %w", ErrStart, s.exitError())
	case <-timer.C:
		s.teardown()
		return fmt.Errorf("%w: no ready signal after %v", ErrStart, timeout)
	}
}

func (s *Session) startModule(prelude string) error {
	ctx, cancel := context.WithCancel(context.Background())

	compiled, err := s.exec.getCompiled(ctx, s.lang)
	if err != nil {
		cancel()
		return err
	}

	stdinReader, stdin := io.Pipe()
	s.stdin = stdin

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(s.stdout).
		WithStderr(s.protocol).
		WithStdin(stdinReader).
		WithArgs(s.lang.Args(prelude)...).
		WithSysWalltime().
		WithSysNanotime().
		WithName("")

	if len(s.cfg.mounts) > 0 {
		fsConfig := wazero.NewFSConfig()
		for _, m := range s.cfg.mounts {
			fsConfig = fsConfig.WithReadOnlyDirMount(m.HostPath, m.GuestPath)
		}
		moduleConfig = moduleConfig.WithFSConfig(fsConfig)
	}

	for k, v := range s.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	s.stop = func() {
		stdinReader.Close()
		cancel()
	}

	go func() {
		mod, err := s.exec.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		s.markExited(err)
	}()

	return nil
}

func (s *Session) startProcess(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.protocol
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = os.Environ()
	for k, v := range s.cfg.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	s.stdin = stdin

	s.stop = func() {
		_ = cmd.Process.Kill()
	}

	go func() {
		s.markExited(cmd.Wait())
	}()

	return nil
}

func (s *Session) markExited(err error) {
	s.exitOnce.Do(func() {
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(s.exited)
	})
}

func (s *Session) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitErr == nil {
		return ErrExited
	}
	return fmt.Errorf("%w: %w", ErrExited, s.exitErr)
}

// Ready reports whether the session can accept commands.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.closed {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// Execute runs code and returns everything it emitted. An error raised by
// the R code is returned as *InterpreterError along with the items captured
// before it.
func (s *Session) Execute(ctx context.Context, code string, opts capture.Options) (capture.Raw, error) {
	if !s.execMu.TryLock() {
		return capture.Raw{}, ErrSessionBusy
	}
	defer s.execMu.Unlock()

	return s.roundTrip(ctx, execCommand(code, opts))
}

// Get returns the value bound to name in the global environment, decoded
// from JSON, or nil when name is not defined.
func (s *Session) Get(ctx context.Context, name string) (any, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if !s.execMu.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.execMu.Unlock()

	raw, err := s.roundTrip(ctx, getCommand(name))
	if err != nil {
		return nil, err
	}
	for _, it := range raw.Items {
		if v, ok := it.(capture.Value); ok {
			return v.Data, nil
		}
	}
	return nil, nil
}

// Set binds value to name in the global environment.
func (s *Session) Set(ctx context.Context, name string, value any) error {
	if err := validateName(name); err != nil {
		return err
	}
	code, err := s.lang.Assign(name, value)
	if err != nil {
		return err
	}
	if !s.execMu.TryLock() {
		return ErrSessionBusy
	}
	defer s.execMu.Unlock()

	_, err = s.roundTrip(ctx, evalCommand(code))
	return err
}

// Reset removes every binding from the global environment.
func (s *Session) Reset(ctx context.Context) error {
	if !s.execMu.TryLock() {
		return ErrSessionBusy
	}
	defer s.execMu.Unlock()

	_, err := s.roundTrip(ctx, resetCommand())
	return err
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("invalid variable name %q", name)
	}
	return nil
}

// roundTrip sends one command and waits for its completion frame.
// Callers must hold execMu.
func (s *Session) roundTrip(ctx context.Context, cmd []byte) (capture.Raw, error) {
	s.mu.Lock()
	closed, started := s.closed, s.started
	s.mu.Unlock()

	if closed {
		return capture.Raw{}, ErrSessionClosed
	}
	if !started {
		return capture.Raw{}, fmt.Errorf("%w: not started", ErrStart)
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.stdout.Reset()
	s.protocol.ResetExec()
	done := s.protocol.Done()

	// The pipe write blocks until the interpreter reads it, so it must not
	// hold up cancellation.
	writeErr := make(chan error, 1)
	go func() {
		_, err := s.stdin.Write(cmd)
		writeErr <- err
	}()

	for {
		select {
		case err := <-writeErr:
			if err != nil {
				return s.collect(), s.writeError(err)
			}
			writeErr = nil
		case <-ctx.Done():
			raw := s.collect()
			s.abort(ctx.Err())
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return raw, ErrTimeout
			}
			return raw, ErrCancelled
		case execErr := <-done:
			return s.collect(), execErr
		case <-s.exited:
			return s.collect(), s.exitError()
		}
	}
}

// writeError reports a failed command write, preferring the exit status
// when the interpreter died underneath it.
func (s *Session) writeError(err error) error {
	select {
	case <-s.exited:
		return s.exitError()
	case <-time.After(time.Second):
		return fmt.Errorf("write command: %w", err)
	}
}

func (s *Session) collect() capture.Raw {
	items := s.protocol.Items()
	if out := strings.TrimRight(s.stdout.String(), "\n"); out != "" {
		items = append(items, capture.Stdout(out))
	}
	return capture.Raw{Items: items}
}

func (s *Session) abort(cause error) {
	s.logger.Warn("terminating interpreter", "cause", cause)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.teardown()
}

// Close stops the interpreter. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.teardown()
	s.logger.Debug("session closed")
	return nil
}

// teardown closes stdin so the prelude sees EOF, then terminates the
// interpreter in case it is blocked in evaluation.
func (s *Session) teardown() {
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.stop != nil {
		s.stop()
	}
}

type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newSessionOutput() *sessionOutput {
	return &sessionOutput{}
}

func (o *sessionOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}
