package executor

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/caffeineduck/rplay/capture"
)

// Frames written by the prelude to stderr. Each frame is wrapped in the
// record separator, which R strings can carry (unlike NUL).
// Format: \x1eRPLAY:{json}\x1e
const (
	frameDelim  = "\x1e"
	readyBody   = "RPLAY_READY"
	doneBody    = "RPLAY_DONE"
	errorPrefix = "RPLAY_ERROR:"
	itemPrefix  = "RPLAY:"
)

type itemFrame struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Format string          `json:"format,omitempty"`
	Width  int             `json:"width,omitempty"`
	Height int             `json:"height,omitempty"`
	Hex    string          `json:"hex,omitempty"`
}

// nextFrame splits content at the first complete frame. before is text that
// precedes the frame; ok is false when no complete frame is buffered.
func nextFrame(content string) (before, body, rest string, ok bool) {
	start := strings.Index(content, frameDelim)
	if start == -1 {
		return content, "", "", false
	}
	end := strings.Index(content[start+len(frameDelim):], frameDelim)
	if end == -1 {
		return content[:start], "", content[start:], false
	}
	bodyStart := start + len(frameDelim)
	return content[:start], content[bodyStart : bodyStart+end], content[bodyStart+end+len(frameDelim):], true
}

func decodeItem(payload string) (capture.Item, error) {
	var f itemFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case "text":
		return capture.Text(f.Text), nil
	case "stdout":
		return capture.Stdout(f.Text), nil
	case "stderr":
		return capture.Stderr(f.Text), nil
	case "warning":
		return capture.Warning(f.Text), nil
	case "message":
		return capture.Message(f.Text), nil
	case "image":
		data, err := hex.DecodeString(f.Hex)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		format := f.Format
		if format == "" {
			format = "png"
		}
		return capture.Image{Format: format, Width: f.Width, Height: f.Height, Data: data}, nil
	case "value":
		var v any
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &v); err != nil {
				return nil, fmt.Errorf("decode value: %w", err)
			}
		}
		return capture.Value{Data: v}, nil
	case "sequence":
		var seq []any
		if err := json.Unmarshal(f.Data, &seq); err != nil {
			return nil, fmt.Errorf("decode sequence: %w", err)
		}
		return capture.Sequence(seq), nil
	}
	return nil, fmt.Errorf("unknown frame type %q", f.Type)
}

// sessionProtocol intercepts the interpreter's stderr. Frames become capture
// items and completion signals; anything else is kept, in order, as stderr
// text.
type sessionProtocol struct {
	buf   strings.Builder
	stray strings.Builder
	items []capture.Item

	readyCh chan struct{}
	doneCh  chan error
	ready   bool

	mu sync.Mutex
}

func newSessionProtocol() *sessionProtocol {
	return &sessionProtocol{
		readyCh: make(chan struct{}),
		doneCh:  make(chan error, 1),
	}
}

func (p *sessionProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)
	content := p.buf.String()
	p.buf.Reset()

	for {
		before, body, rest, ok := nextFrame(content)
		p.stray.WriteString(before)
		if !ok {
			p.buf.WriteString(rest)
			break
		}
		p.handleFrame(body)
		content = rest
	}

	return len(data), nil
}

func (p *sessionProtocol) handleFrame(body string) {
	switch {
	case body == readyBody:
		p.stray.Reset()
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}

	case body == doneBody:
		p.flushStray()
		p.signal(nil)

	case strings.HasPrefix(body, errorPrefix):
		p.flushStray()
		p.signal(&InterpreterError{Message: strings.TrimPrefix(body, errorPrefix)})

	case strings.HasPrefix(body, itemPrefix):
		p.flushStray()
		item, err := decodeItem(strings.TrimPrefix(body, itemPrefix))
		if err != nil {
			p.items = append(p.items, capture.Stderr(err.Error()))
			return
		}
		p.items = append(p.items, item)

	default:
		p.stray.WriteString(frameDelim + body + frameDelim)
	}
}

func (p *sessionProtocol) flushStray() {
	if p.stray.Len() == 0 {
		return
	}
	text := strings.TrimRight(p.stray.String(), "\n")
	p.stray.Reset()
	if text != "" {
		p.items = append(p.items, capture.Stderr(text))
	}
}

func (p *sessionProtocol) signal(err error) {
	select {
	case p.doneCh <- err:
	default:
	}
}

func (p *sessionProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *sessionProtocol) Done() <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

// ResetExec prepares for the next command.
func (p *sessionProtocol) ResetExec() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
	p.doneCh = make(chan error, 1)
	p.items = nil
	p.stray.Reset()
}

// Items returns the items captured since the last ResetExec, including any
// stderr text not yet followed by a frame.
func (p *sessionProtocol) Items() []capture.Item {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushStray()
	items := make([]capture.Item, len(p.items))
	copy(items, p.items)
	return items
}

// InterpreterError is an error condition raised by R code.
type InterpreterError struct {
	Message string
}

func (e *InterpreterError) Error() string {
	return e.Message
}

// IsInterpreterError reports whether err came from the interpreter rather
// than from the session machinery.
func IsInterpreterError(err error) bool {
	var ie *InterpreterError
	return errors.As(err, &ie)
}
