// Package capture defines the items an R session emits while running code and
// turns them into the text shown to a user.
//
// Items form a closed set: [Text], [Stdout], [Stderr], [Warning], [Message],
// [Image], [Value] and [Sequence]. Order is the interpreter's emission order
// and is preserved by every function in this package.
package capture

// Item is one unit of output captured during an execution.
type Item interface {
	item()
}

// Text is plain text that is not tied to a stream.
type Text string

// Stdout is text written to standard output.
type Stdout string

// Stderr is text written to standard error, or an error condition.
type Stderr string

// Warning is a warning condition message.
type Warning string

// Message is a message condition (e.g. from message()).
type Message string

// Image is a rendered graphics page.
type Image struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"data"`
}

// Value is a structured value returned by the interpreter.
type Value struct {
	Data any
}

// Sequence is a vector of scalars, such as an unnamed R atomic vector.
type Sequence []any

func (Text) item()     {}
func (Stdout) item()   {}
func (Stderr) item()   {}
func (Warning) item()  {}
func (Message) item()  {}
func (Image) item()    {}
func (Value) item()    {}
func (Sequence) item() {}

// Options controls what a session captures during one execution.
type Options struct {
	AutoPrint   bool
	Streams     bool
	Conditions  bool
	Graphics    bool
	ImageWidth  int
	ImageHeight int
}

// Default image dimensions in pixels.
const (
	DefaultImageWidth  = 504
	DefaultImageHeight = 504
)

// DefaultOptions enables every capture kind at the default image size.
func DefaultOptions() Options {
	return Options{
		AutoPrint:   true,
		Streams:     true,
		Conditions:  true,
		Graphics:    true,
		ImageWidth:  DefaultImageWidth,
		ImageHeight: DefaultImageHeight,
	}
}

// Raw is everything captured during one execution.
type Raw struct {
	Items []Item
}

// Images returns the image items in emission order.
func (r Raw) Images() []Image {
	return Images(r.Items)
}
