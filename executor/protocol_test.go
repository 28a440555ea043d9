package executor

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/caffeineduck/rplay/capture"
)

func TestNextFrame(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantBefore string
		wantBody   string
		wantRest   string
		wantOK     bool
	}{
		{"no frame", "hello world", "hello world", "", "", false},
		{"empty content", "", "", "", "", false},
		{"complete frame", "pre\x1eRPLAY_DONE\x1epost", "pre", "RPLAY_DONE", "post", true},
		{"partial frame", "pre\x1eRPLAY:{\"ty", "pre", "", "\x1eRPLAY:{\"ty", false},
		{"two frames", "\x1eA\x1e\x1eB\x1e", "", "A", "\x1eB\x1e", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, body, rest, ok := nextFrame(tt.content)
			if before != tt.wantBefore {
				t.Errorf("before = %q, want %q", before, tt.wantBefore)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if rest != tt.wantRest {
				t.Errorf("rest = %q, want %q", rest, tt.wantRest)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestDecodeItem(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    capture.Item
		wantErr bool
	}{
		{"text", `{"type":"text","text":"a"}`, capture.Text("a"), false},
		{"stdout", `{"type":"stdout","text":"[1] 2"}`, capture.Stdout("[1] 2"), false},
		{"stderr", `{"type":"stderr","text":"oops"}`, capture.Stderr("oops"), false},
		{"warning", `{"type":"warning","text":"w"}`, capture.Warning("w"), false},
		{"message", `{"type":"message","text":"m"}`, capture.Message("m"), false},
		{
			"image",
			`{"type":"image","format":"png","width":2,"height":3,"hex":"89504e47"}`,
			capture.Image{Format: "png", Width: 2, Height: 3, Data: []byte{0x89, 'P', 'N', 'G'}},
			false,
		},
		{
			"image default format",
			`{"type":"image","hex":"00"}`,
			capture.Image{Format: "png", Data: []byte{0}},
			false,
		},
		{"value", `{"type":"value","data":{"a":[1,2]}}`, capture.Value{Data: map[string]any{"a": []any{float64(1), float64(2)}}}, false},
		{"null value", `{"type":"value"}`, capture.Value{}, false},
		{"sequence", `{"type":"sequence","data":["x",1]}`, capture.Sequence{"x", float64(1)}, false},
		{"bad json", `{"type":`, nil, true},
		{"bad hex", `{"type":"image","hex":"zz"}`, nil, true},
		{"unknown type", `{"type":"table"}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeItem(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("item = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSessionProtocolReady(t *testing.T) {
	p := newSessionProtocol()

	p.Write([]byte("R startup banner\n\x1eRPLAY_RE"))
	select {
	case <-p.Ready():
		t.Fatal("ready before the frame completed")
	default:
	}

	p.Write([]byte("ADY\x1e"))
	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatal("ready signal not delivered")
	}

	// Startup noise is not reported as command output.
	if items := p.Items(); len(items) != 0 {
		t.Errorf("items = %#v, want none", items)
	}

	// A second ready frame must not panic on a closed channel.
	p.Write([]byte("\x1eRPLAY_READY\x1e"))
}

func TestSessionProtocolItems(t *testing.T) {
	p := newSessionProtocol()
	p.ResetExec()

	chunks := []string{
		"\x1eRPLAY:{\"type\":\"stdout\",\"text\":\"one\"}\x1e",
		"raw stderr\n",
		"\x1eRPLAY:{\"type\":\"warn",
		"ing\",\"text\":\"two\"}\x1e",
		"\x1eRPLAY:not json\x1e",
		"\x1eSOMETHING\x1e",
		"\x1eRPLAY_DONE\x1e",
	}
	for _, c := range chunks {
		if n, err := p.Write([]byte(c)); err != nil || n != len(c) {
			t.Fatalf("Write(%q) = %d, %v", c, n, err)
		}
	}

	select {
	case err := <-p.Done():
		if err != nil {
			t.Fatalf("done error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("done signal not delivered")
	}

	items := p.Items()
	if len(items) != 5 {
		t.Fatalf("got %d items: %#v", len(items), items)
	}
	if items[0] != capture.Stdout("one") {
		t.Errorf("items[0] = %#v", items[0])
	}
	if items[1] != capture.Stderr("raw stderr") {
		t.Errorf("items[1] = %#v", items[1])
	}
	if items[2] != capture.Warning("two") {
		t.Errorf("items[2] = %#v", items[2])
	}
	if _, ok := items[3].(capture.Stderr); !ok {
		t.Errorf("undecodable frame should become stderr text, got %#v", items[3])
	}
	if items[4] != capture.Stderr("\x1eSOMETHING\x1e") {
		t.Errorf("unknown frame should pass through, got %#v", items[4])
	}
}

func TestSessionProtocolError(t *testing.T) {
	p := newSessionProtocol()
	p.ResetExec()

	p.Write([]byte("\x1eRPLAY_ERROR:Error in f() : boom\x1e"))

	err := <-p.Done()
	if !IsInterpreterError(err) {
		t.Fatalf("expected interpreter error, got %v", err)
	}
	if err.Error() != "Error in f() : boom" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestSessionProtocolResetExec(t *testing.T) {
	p := newSessionProtocol()
	p.ResetExec()

	p.Write([]byte("\x1eRPLAY:{\"type\":\"stdout\",\"text\":\"old\"}\x1e\x1eRPLAY_DONE\x1e"))
	p.ResetExec()

	select {
	case err := <-p.Done():
		t.Fatalf("stale done signal survived reset: %v", err)
	default:
	}
	if items := p.Items(); len(items) != 0 {
		t.Errorf("stale items survived reset: %#v", items)
	}
}

func TestIsInterpreterError(t *testing.T) {
	if IsInterpreterError(errors.New("plain")) {
		t.Error("plain error reported as interpreter error")
	}
	if IsInterpreterError(nil) {
		t.Error("nil reported as interpreter error")
	}
	wrapped := errors.Join(ErrTimeout, &InterpreterError{Message: "x"})
	if !IsInterpreterError(wrapped) {
		t.Error("wrapped interpreter error not detected")
	}
}
