// Package executor runs R interpreters and speaks the session protocol
// with them.
//
// # Overview
//
// An [Executor] owns a wazero runtime and caches compiled interpreter
// modules. Each [Session] is one interpreter, either a WASM module or a
// native Rscript process, running a prelude that reads commands from stdin
// and reports results as frames on stderr. The global environment persists
// across commands until [Session.Reset].
//
// # Basic Usage
//
//	exec, err := executor.New(executor.WithDiskCache())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	session, err := exec.NewSession(r.New(r.WithModule("webr/R.wasm")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Execute(ctx, `x <- 42`, capture.DefaultOptions())
//	raw, err := session.Execute(ctx, `x`, capture.DefaultOptions())
//	fmt.Println(capture.Normalize(raw.Items)) // [1] 42
//
// # Errors
//
// An error raised by R code is returned as [*InterpreterError] together
// with the items captured before it; the session stays usable. Timeouts and
// cancellation ([ErrTimeout], [ErrCancelled]) terminate the interpreter.
//
// # Language Interface
//
// To run a different R build, implement the [Language] interface.
// See [github.com/caffeineduck/rplay/language/r] for the default.
package executor
