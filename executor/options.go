package executor

import (
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// SessionOption configures a Session at creation time.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	timeout      time.Duration
	startTimeout time.Duration
	mounts       []Mount
	env          map[string]string
	logger       *log.Logger
}

// Mount exposes a host directory to the WASM interpreter, read-only.
type Mount struct {
	GuestPath string
	HostPath  string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout:      30 * time.Second,
		startTimeout: 30 * time.Second,
		env:          make(map[string]string),
		logger:       log.New(io.Discard),
	}
}

// WithSessionTimeout sets the maximum time a single command may run.
// Zero disables the limit.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithStartTimeout sets how long to wait for the interpreter to report ready.
func WithStartTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.startTimeout = d
	}
}

// WithSessionMount mounts hostPath at guestPath inside the WASM module.
// Ignored for native sessions.
//
// Examples:
//
//	executor.WithSessionMount("/usr/lib/R", "./webr/lib/R")
//	executor.WithSessionMount("/data", "./input")
func WithSessionMount(guestPath, hostPath string) SessionOption {
	return func(c *sessionConfig) {
		c.mounts = append(c.mounts, Mount{GuestPath: guestPath, HostPath: hostPath})
	}
}

// WithSessionEnv sets an environment variable for the interpreter.
func WithSessionEnv(key, value string) SessionOption {
	return func(c *sessionConfig) {
		c.env[key] = value
	}
}

// WithSessionLogger sets the logger used for session lifecycle events.
func WithSessionLogger(l *log.Logger) SessionOption {
	return func(c *sessionConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		diskCache:        false,
		memoryLimitPages: 0, // 0 means use wazero default (65536 pages = 4GB)
	}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/rplay or XDG_CACHE_HOME/rplay.
//
// Examples:
//
//	executor.New(executor.WithDiskCache())            // default dir
//	executor.New(executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
// This moves the compilation cost to startup rather than the first session.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(1024) = 64MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit512MB uint32 = 8192  // 512 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
	MemoryLimit2GB   uint32 = 32768 // 2 GB
)

// ParseMemoryLimit converts a size such as "256mb" to pages. Unknown sizes
// return 0, meaning no limit.
func ParseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "64mb":
		return MemoryLimit64MB
	case "256mb":
		return MemoryLimit256MB
	case "512mb":
		return MemoryLimit512MB
	case "1gb":
		return MemoryLimit1GB
	case "2gb":
		return MemoryLimit2GB
	default:
		return 0
	}
}
