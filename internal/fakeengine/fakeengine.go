// Package fakeengine speaks the session protocol on behalf of a tiny
// line-oriented language. Tests use it in place of a real R build.
//
// Each code line is one statement:
//
//	print <text>      stdout item, when streams are captured
//	cat <text>        raw text on stdout, when streams are captured
//	stderr <text>     raw text on stderr
//	warn <text>       warning item
//	message <text>    message item
//	plot              1x1 image item
//	value <json>      value item
//	seq <json array>  sequence item
//	set <name> <json> bind a variable
//	stop <text>       raise an error and skip the remaining lines
//	sleep <ms>        block
//	crash             exit without replying
//
// Any other line is echoed as "[1] <line>" when auto-print is on, or the
// bound value when the line names a variable.
//
// Lines end at "\n", "\r\n" or a lone "\r", as with R's readLines.
package fakeengine

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrCrash is returned by Serve when the code asked the engine to die.
var ErrCrash = errors.New("crash requested")

// PNGHeader is the payload of every plot.
const PNGHeader = "89504e470d0a1a0a"

type engine struct {
	vars   map[string]json.RawMessage
	stdout io.Writer
	stderr io.Writer
}

type execFlags struct {
	width, height int
	autoPrint     bool
	streams       bool
	conditions    bool
	graphics      bool
}

// Serve runs the command loop until stdin is exhausted.
func Serve(stdin io.Reader, stdout, stderr io.Writer) error {
	r := bufio.NewReader(stdin)
	e := &engine{vars: make(map[string]json.RawMessage), stdout: stdout, stderr: stderr}

	e.signal("RPLAY_READY")

	for {
		header, err := readLine(r)
		if err == io.EOF && header == "" {
			return nil
		}
		if err != nil && err != io.EOF {
			return err
		}

		fields := strings.Fields(header)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "reset":
			e.vars = make(map[string]json.RawMessage)
			e.signal("RPLAY_DONE")
			continue
		case "exit":
			return nil
		}

		if len(fields) < 2 {
			e.signal("RPLAY_ERROR:malformed command")
			continue
		}
		n, _ := strconv.Atoi(fields[1])
		body, err := readLines(r, n)
		if err != nil {
			return err
		}

		switch fields[0] {
		case "exec":
			if err := e.run(body, parseFlags(fields)); err != nil {
				return err
			}
		case "eval":
			if err := e.run(body, execFlags{}); err != nil {
				return err
			}
		case "get":
			if v, ok := e.vars[strings.TrimSpace(body[0])]; ok {
				e.item(map[string]any{"type": "value", "data": v})
			}
			e.signal("RPLAY_DONE")
		default:
			e.signal("RPLAY_ERROR:unknown command " + fields[0])
		}
	}
}

func parseFlags(fields []string) execFlags {
	at := func(i int) int {
		if i >= len(fields) {
			return 0
		}
		n, _ := strconv.Atoi(fields[i])
		return n
	}
	return execFlags{
		width:      at(2),
		height:     at(3),
		autoPrint:  at(4) == 1,
		streams:    at(5) == 1,
		conditions: at(6) == 1,
		graphics:   at(7) == 1,
	}
}

func readLines(r *bufio.Reader, n int) ([]string, error) {
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := readLine(r)
		if err != nil && !(err == io.EOF && line != "") {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// readLine returns the next line without its terminator.
func readLine(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return b.String(), err
		}
		switch c {
		case '\n':
			return b.String(), nil
		case '\r':
			if next, err := r.Peek(1); err == nil && next[0] == '\n' {
				r.ReadByte()
			}
			return b.String(), nil
		}
		b.WriteByte(c)
	}
}

func (e *engine) run(lines []string, f execFlags) error {
	for _, line := range lines {
		verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")

		switch verb {
		case "":
		case "print":
			if f.streams {
				e.item(map[string]any{"type": "stdout", "text": arg})
			}
		case "cat":
			if f.streams {
				fmt.Fprintln(e.stdout, arg)
			}
		case "stderr":
			fmt.Fprintln(e.stderr, arg)
		case "warn":
			if f.conditions {
				e.item(map[string]any{"type": "warning", "text": arg})
			}
		case "message":
			if f.conditions {
				e.item(map[string]any{"type": "message", "text": arg})
			}
		case "plot":
			if f.graphics {
				e.item(map[string]any{"type": "image", "format": "png", "width": f.width, "height": f.height, "hex": PNGHeader})
			}
		case "value":
			e.item(map[string]any{"type": "value", "data": json.RawMessage(arg)})
		case "seq":
			e.item(map[string]any{"type": "sequence", "data": json.RawMessage(arg)})
		case "set":
			name, value, _ := strings.Cut(arg, " ")
			e.vars[name] = json.RawMessage(value)
		case "stop":
			e.signal("RPLAY_ERROR:" + arg)
			return nil
		case "sleep":
			ms, _ := strconv.Atoi(arg)
			time.Sleep(time.Duration(ms) * time.Millisecond)
		case "crash":
			return ErrCrash
		default:
			if !f.autoPrint {
				continue
			}
			if v, ok := e.vars[line]; ok {
				e.item(map[string]any{"type": "stdout", "text": "[1] " + string(v)})
				continue
			}
			e.item(map[string]any{"type": "stdout", "text": "[1] " + line})
		}
	}
	e.signal("RPLAY_DONE")
	return nil
}

func (e *engine) item(frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		e.signal("RPLAY_ERROR:" + err.Error())
		return
	}
	fmt.Fprintf(e.stderr, "\x1eRPLAY:%s\x1e", data)
}

func (e *engine) signal(body string) {
	fmt.Fprintf(e.stderr, "\x1e%s\x1e", body)
}
