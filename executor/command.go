package executor

import (
	"fmt"
	"strings"

	"github.com/caffeineduck/rplay/capture"
)

// Commands are a header line followed by a body of the announced number of
// lines:
//
//	exec <lines> <width> <height> <autoprint> <streams> <conditions> <graphics>
//	eval <lines>
//	get <lines>
//	reset
//
// The prelude exits when stdin reaches EOF. R's readLines ends a line at
// "\n", "\r\n" or a lone "\r", so bodies are normalized to "\n" before the
// lines are counted.
func execCommand(code string, opts capture.Options) []byte {
	code = normalizeNewlines(code)
	header := fmt.Sprintf("exec %d %d %d %d %d %d %d",
		lineCount(code),
		opts.ImageWidth,
		opts.ImageHeight,
		flag(opts.AutoPrint),
		flag(opts.Streams),
		flag(opts.Conditions),
		flag(opts.Graphics),
	)
	return withBody(header, code)
}

func evalCommand(code string) []byte {
	code = normalizeNewlines(code)
	return withBody(fmt.Sprintf("eval %d", lineCount(code)), code)
}

func getCommand(name string) []byte {
	return withBody("get 1", name)
}

func resetCommand() []byte {
	return []byte("reset\n")
}

func withBody(header, body string) []byte {
	var b strings.Builder
	b.Grow(len(header) + len(body) + 2)
	b.WriteString(header)
	b.WriteByte('\n')
	b.WriteString(body)
	b.WriteByte('\n')
	return []byte(b.String())
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizeNewlines(s string) string {
	return newlines.Replace(s)
}

func lineCount(s string) int {
	return strings.Count(s, "\n") + 1
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
