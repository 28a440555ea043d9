//go:build wasip1

// Mock interpreter for testing the WASM path without a real R build.
// Build with: GOOS=wasip1 GOARCH=wasm go build -o ../mock.wasm .
package main

import (
	"os"

	"github.com/caffeineduck/rplay/internal/fakeengine"
)

func main() {
	if err := fakeengine.Serve(os.Stdin, os.Stdout, os.Stderr); err != nil {
		os.Exit(3)
	}
}
