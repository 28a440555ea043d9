package playground

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caffeineduck/rplay/capture"
	"github.com/caffeineduck/rplay/executor"
	"github.com/caffeineduck/rplay/translate"
)

type fakeInterpreter struct {
	mu      sync.Mutex
	run     func(ctx context.Context, code string) (capture.Raw, error)
	vars    map[string]any
	calls   int
	ready   bool
	closed  bool
	lastOpt capture.Options
}

func newFake(run func(ctx context.Context, code string) (capture.Raw, error)) *fakeInterpreter {
	return &fakeInterpreter{run: run, vars: make(map[string]any), ready: true}
}

func (f *fakeInterpreter) Execute(ctx context.Context, code string, opts capture.Options) (capture.Raw, error) {
	f.mu.Lock()
	f.calls++
	f.lastOpt = opts
	run := f.run
	f.mu.Unlock()
	return run(ctx, code)
}

func (f *fakeInterpreter) Get(_ context.Context, name string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vars[name], nil
}

func (f *fakeInterpreter) Set(_ context.Context, name string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "bad" {
		return errors.New("cannot bind")
	}
	f.vars[name] = value
	return nil
}

func (f *fakeInterpreter) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vars = make(map[string]any)
	return nil
}

func (f *fakeInterpreter) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready && !f.closed
}

func (f *fakeInterpreter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeInterpreter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func items(it ...capture.Item) func(context.Context, string) (capture.Raw, error) {
	return func(context.Context, string) (capture.Raw, error) {
		return capture.Raw{Items: it}, nil
	}
}

func startWith(f *fakeInterpreter) Starter {
	return func(context.Context) (Interpreter, error) {
		return f, nil
	}
}

func newPlayground(t *testing.T, f *fakeInterpreter, opts ...Option) *Playground {
	t.Helper()
	pg := New(startWith(f), opts...)
	if err := pg.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { pg.Close() })
	return pg
}

func TestRunNotReady(t *testing.T) {
	pg := New(startWith(newFake(items())))

	if pg.Ready() {
		t.Fatal("uninitialized playground reports ready")
	}

	// Readiness is checked before the input.
	for _, code := range []string{"1 + 1", ""} {
		res := pg.Run(context.Background(), code)
		if res.Success {
			t.Fatalf("Run(%q) succeeded before initialize", code)
		}
		if !errors.Is(res.Err, ErrNotReady) {
			t.Errorf("Run(%q) err = %v, want ErrNotReady", code, res.Err)
		}
		if res.Error != ErrNotReady.Error() {
			t.Errorf("Run(%q) error = %q", code, res.Error)
		}
	}
}

func TestInitializeFailure(t *testing.T) {
	boom := errors.New("no R.wasm")
	pg := New(func(context.Context) (Interpreter, error) {
		return nil, boom
	})

	err := pg.Initialize(context.Background())
	if !errors.Is(err, ErrInit) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want ErrInit wrapping the start error", err)
	}
	if pg.Ready() {
		t.Error("playground ready after failed initialize")
	}
}

func TestInitializeIdempotent(t *testing.T) {
	var starts int
	f := newFake(items())
	pg := New(func(context.Context) (Interpreter, error) {
		starts++
		return f, nil
	})
	defer pg.Close()

	for i := 0; i < 3; i++ {
		if err := pg.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize %d: %v", i, err)
		}
	}
	if starts != 1 {
		t.Errorf("started %d interpreters, want 1", starts)
	}
}

func TestRunEmptyCode(t *testing.T) {
	f := newFake(items(capture.Stdout("unused")))
	pg := newPlayground(t, f)

	for _, code := range []string{"", "   ", "\n\t"} {
		res := pg.Run(context.Background(), code)
		if res.Success {
			t.Errorf("Run(%q) succeeded", code)
		}
		if res.Error != "no code supplied" {
			t.Errorf("Run(%q) error = %q", code, res.Error)
		}
		if !errors.Is(res.Err, ErrEmptyInput) {
			t.Errorf("Run(%q) err = %v", code, res.Err)
		}
		if res.ExecutionTimeMs != 0 {
			t.Errorf("Run(%q) charged %d ms", code, res.ExecutionTimeMs)
		}
	}
	if n := f.callCount(); n != 0 {
		t.Errorf("interpreter called %d times for empty input", n)
	}
}

func TestRunSuccess(t *testing.T) {
	f := newFake(items(
		capture.Stdout("mean = "),
		capture.Stderr("object 'z' not found"),
	))
	pg := newPlayground(t, f, WithMaxOutput(1000))

	res := pg.Run(context.Background(), "cat('mean = ')")
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	want := "mean = \nerror: object 'z' not found"
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
	if res.Error != "" || res.Err != nil {
		t.Errorf("successful result carries error %q / %v", res.Error, res.Err)
	}
	if res.ID == "" {
		t.Error("result has no ID")
	}
}

func TestRunInterpreterError(t *testing.T) {
	f := newFake(func(context.Context, string) (capture.Raw, error) {
		raw := capture.Raw{Items: []capture.Item{
			capture.Stdout("mean = "),
			capture.Image{Format: "png", Data: []byte{1}},
		}}
		return raw, &executor.InterpreterError{Message: "Error: object 'z' not found"}
	})
	pg := newPlayground(t, f, WithMaxOutput(3))

	res := pg.Run(context.Background(), "mean(z)")
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Error: variable 'z' does not exist" {
		t.Errorf("error = %q", res.Error)
	}
	// Partial output is kept and not truncated on failure.
	if res.Output != "mean = " {
		t.Errorf("output = %q", res.Output)
	}
	if len(res.Images) != 0 {
		t.Errorf("failed result has %d images", len(res.Images))
	}
	if !executor.IsInterpreterError(res.Err) {
		t.Errorf("err = %v", res.Err)
	}
}

func TestRunErrorTranslation(t *testing.T) {
	f := newFake(func(context.Context, string) (capture.Raw, error) {
		return capture.Raw{}, &executor.InterpreterError{Message: "Error: object 'z' not found"}
	})
	pg := newPlayground(t, f, WithTranslator(translate.New("fr")))

	res := pg.Run(context.Background(), "z")
	if !strings.Contains(res.Error, "la variable 'z' n'existe pas") {
		t.Errorf("error = %q", res.Error)
	}

	f.run = func(context.Context, string) (capture.Raw, error) {
		return capture.Raw{}, &executor.InterpreterError{}
	}
	res = pg.Run(context.Background(), "z")
	if res.Error != "une erreur s'est produite lors de l'exécution du code" {
		t.Errorf("empty message error = %q", res.Error)
	}
}

func TestRunTruncation(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		want      string
		truncated bool
	}{
		{"under", "abc", "abc", false},
		{"at limit", "abcdefghij", "abcdefghij", false},
		{"one over", "abcdefghijk", "abcdefghij" + capture.OmittedSuffix, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg := newPlayground(t, newFake(items(capture.Stdout(tt.output))), WithMaxOutput(10))

			res := pg.Run(context.Background(), "x")
			if res.Output != tt.want {
				t.Errorf("output = %q, want %q", res.Output, tt.want)
			}
			if res.Truncated != tt.truncated {
				t.Errorf("truncated = %v, want %v", res.Truncated, tt.truncated)
			}
		})
	}
}

func TestRunImages(t *testing.T) {
	img := capture.Image{Format: "png", Width: 10, Height: 20, Data: []byte{0x89}}
	pg := newPlayground(t, newFake(items(capture.Stdout("plotted"), img)))

	res := pg.Run(context.Background(), "plot(1)")
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if res.Output != "plotted" {
		t.Errorf("output = %q", res.Output)
	}
	if len(res.Images) != 1 || res.Images[0].Width != 10 {
		t.Errorf("images = %#v", res.Images)
	}
}

func TestRunCaptureOptions(t *testing.T) {
	f := newFake(items())
	opts := capture.Options{AutoPrint: true, ImageWidth: 100, ImageHeight: 50}
	pg := newPlayground(t, f, WithCapture(opts))

	pg.Run(context.Background(), "x")
	if f.lastOpt != opts {
		t.Errorf("options = %#v, want %#v", f.lastOpt, opts)
	}
}

func TestRunTiming(t *testing.T) {
	pg := newPlayground(t, newFake(func(context.Context, string) (capture.Raw, error) {
		time.Sleep(30 * time.Millisecond)
		return capture.Raw{}, errors.New("late failure")
	}))

	res := pg.Run(context.Background(), "Sys.sleep(0.03)")
	if res.ExecutionTimeMs < 30 {
		t.Errorf("executionTimeMs = %d, want >= 30", res.ExecutionTimeMs)
	}
	if res.Duration < 30*time.Millisecond {
		t.Errorf("duration = %v", res.Duration)
	}
}

func TestRunBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	pg := newPlayground(t, newFake(func(context.Context, string) (capture.Raw, error) {
		close(started)
		<-release
		return capture.Raw{Items: []capture.Item{capture.Stdout("first")}}, nil
	}))

	first := make(chan Result, 1)
	go func() {
		first <- pg.Run(context.Background(), "slow()")
	}()
	<-started

	res := pg.Run(context.Background(), "fast()")
	if !errors.Is(res.Err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", res.Err)
	}
	if res.Error != "an execution is already in progress" {
		t.Errorf("error = %q", res.Error)
	}
	if _, err := pg.LoadVariable(context.Background(), "x"); !errors.Is(err, ErrBusy) {
		t.Errorf("LoadVariable err = %v, want ErrBusy", err)
	}

	close(release)
	if res := <-first; !res.Success || res.Output != "first" {
		t.Errorf("first run = %+v", res)
	}
}

func TestCancel(t *testing.T) {
	started := make(chan struct{})
	pg := newPlayground(t, newFake(func(ctx context.Context, _ string) (capture.Raw, error) {
		close(started)
		<-ctx.Done()
		return capture.Raw{Items: []capture.Item{capture.Stdout("partial")}}, executor.ErrCancelled
	}))

	// No-op while idle.
	pg.Cancel()

	done := make(chan Result, 1)
	go func() {
		done <- pg.Run(context.Background(), "repeat {}")
	}()
	<-started
	pg.Cancel()

	select {
	case res := <-done:
		if res.Success {
			t.Fatal("cancelled run succeeded")
		}
		if !errors.Is(res.Err, executor.ErrCancelled) {
			t.Errorf("err = %v", res.Err)
		}
		if res.Error != "execution cancelled" {
			t.Errorf("error = %q", res.Error)
		}
		if res.Output != "partial" {
			t.Errorf("output = %q", res.Output)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not reach the interpreter")
	}

	pg.Cancel()
}

func TestRunPanic(t *testing.T) {
	pg := newPlayground(t, newFake(func(context.Context, string) (capture.Raw, error) {
		panic("engine exploded")
	}))

	res := pg.Run(context.Background(), "x")
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Error, "engine exploded") {
		t.Errorf("error = %q", res.Error)
	}

	// The playground is usable afterwards.
	if res := pg.Run(context.Background(), "x"); errors.Is(res.Err, ErrBusy) {
		t.Error("playground stuck busy after panic")
	}
}

func TestReinitializeAfterTeardown(t *testing.T) {
	first := newFake(items())
	second := newFake(items(capture.Stdout("fresh")))
	fakes := []*fakeInterpreter{first, second}

	pg := New(func(context.Context) (Interpreter, error) {
		f := fakes[0]
		fakes = fakes[1:]
		return f, nil
	})
	defer pg.Close()

	if err := pg.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	first.mu.Lock()
	first.ready = false
	first.mu.Unlock()

	if pg.Ready() {
		t.Fatal("ready with a torn down interpreter")
	}
	if res := pg.Run(context.Background(), "x"); !errors.Is(res.Err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", res.Err)
	}

	if err := pg.Initialize(context.Background()); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if !first.closed {
		t.Error("torn down interpreter not closed")
	}
	if res := pg.Run(context.Background(), "x"); res.Output != "fresh" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestVariables(t *testing.T) {
	pg := newPlayground(t, newFake(items()))
	ctx := context.Background()

	if !pg.LoadData(ctx, "df", []float64{1, 2}) {
		t.Fatal("LoadData failed")
	}
	if pg.LoadData(ctx, "bad", 1) {
		t.Error("LoadData reported success for a failing bind")
	}

	v, err := pg.LoadVariable(ctx, "df")
	if err != nil {
		t.Fatalf("LoadVariable: %v", err)
	}
	if got, ok := v.([]float64); !ok || len(got) != 2 {
		t.Errorf("value = %#v", v)
	}

	missing, err := pg.LoadVariable(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing = %#v, %v", missing, err)
	}

	if err := pg.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if v, _ := pg.LoadVariable(ctx, "df"); v != nil {
		t.Errorf("value after reset = %#v", v)
	}
}

func TestClose(t *testing.T) {
	f := newFake(items())
	pg := New(startWith(f))
	if err := pg.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := pg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pg.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !f.closed {
		t.Error("interpreter not closed")
	}
	if pg.Ready() {
		t.Error("closed playground reports ready")
	}
	if res := pg.Run(context.Background(), "x"); !errors.Is(res.Err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", res.Err)
	}
	if pg.LoadData(context.Background(), "x", 1) {
		t.Error("LoadData succeeded after close")
	}
	if err := pg.Initialize(context.Background()); !errors.Is(err, ErrInit) {
		t.Errorf("initialize after close = %v", err)
	}
}
