// Package rplay runs R code in isolated interpreter sessions and turns what
// the interpreter emits into uniform, user-facing results.
//
// # Overview
//
// rplay drives an R interpreter, either a WebAssembly build of R running
// under wazero or a host Rscript process, through a small line protocol.
// Output, conditions, values and plots come back as ordered capture items,
// which are normalized into text. Interpreter errors are translated into
// plain-language messages.
//
// # Basic Usage
//
//	exec, _ := executor.New(executor.WithDiskCache())
//	defer exec.Close()
//
//	pg := playground.New(playground.SessionStarter(exec, r.New(r.WithModule("webr/R.wasm"))))
//	if err := pg.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pg.Close()
//
//	res := pg.Run(ctx, `x <- c(1, 5, 9); mean(x)`)
//	fmt.Println(res.Output) // [1] 5
//
//	res = pg.Run(ctx, `mean(y)`)
//	fmt.Println(res.Error) // Error: variable 'y' does not exist
//
// # Packages
//
//   - [github.com/caffeineduck/rplay/playground]: one execution at a time, timing, truncation
//   - [github.com/caffeineduck/rplay/capture]: capture items and output normalization
//   - [github.com/caffeineduck/rplay/translate]: locale-aware error message translation
//   - [github.com/caffeineduck/rplay/executor]: wazero runtime and interpreter sessions
//   - [github.com/caffeineduck/rplay/language/r]: R adapter and session prelude
//   - [github.com/caffeineduck/rplay/examples]: built-in snippet catalog
//
// The rplay command exposes the same pipeline as a CLI, an HTTP API and an
// MCP tool server.
package rplay

// Version is the rplay release version.
const Version = "0.3.0"
