package playground

import (
	"io"

	"github.com/caffeineduck/rplay/capture"
	"github.com/caffeineduck/rplay/translate"
	"github.com/charmbracelet/log"
)

// DefaultMaxOutput is the output length, in characters, beyond which
// successful output is truncated.
const DefaultMaxOutput = 10000

// Option configures a Playground.
type Option func(*config)

type config struct {
	maxOutput  int
	capture    capture.Options
	translator *translate.Translator
	logger     *log.Logger
}

func defaultConfig() config {
	return config{
		maxOutput:  DefaultMaxOutput,
		capture:    capture.DefaultOptions(),
		translator: translate.New("en"),
		logger:     log.New(io.Discard),
	}
}

// WithMaxOutput sets the truncation limit in characters. Zero or less
// disables truncation.
func WithMaxOutput(n int) Option {
	return func(c *config) {
		c.maxOutput = n
	}
}

// WithCapture sets what each execution captures.
func WithCapture(opts capture.Options) Option {
	return func(c *config) {
		c.capture = opts
	}
}

// WithTranslator sets the translator applied to error messages.
func WithTranslator(t *translate.Translator) Option {
	return func(c *config) {
		if t != nil {
			c.translator = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
