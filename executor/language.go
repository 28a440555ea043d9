package executor

// Language defines the interface for an interpreter that speaks the session
// protocol. Implement this interface to plug in a different R build.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "r").
	// Used as the cache key for compiled modules.
	Name() string

	// Module returns the WASM binary for the interpreter.
	Module() ([]byte, error)

	// Prelude returns the interpreter-side program that implements the
	// session loop: it reads commands from stdin and writes frames to stderr.
	Prelude() string

	// Args returns the command-line arguments passed to the WASM module.
	// For R: []string{"R", "--vanilla", "--no-echo", "-e", prelude}
	Args(prelude string) []string

	// Assign returns code that binds value to name in the session's
	// global environment.
	Assign(name string, value any) (string, error)
}

// NativeLanguage is implemented by languages that can also run as a host
// process. Command returns nil when the WASM module should be used instead.
type NativeLanguage interface {
	Language
	Command(prelude string) []string
}

func nativeCommand(lang Language, prelude string) []string {
	if nl, ok := lang.(NativeLanguage); ok {
		return nl.Command(prelude)
	}
	return nil
}
