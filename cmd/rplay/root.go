package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/caffeineduck/rplay"
	"github.com/caffeineduck/rplay/capture"
	"github.com/caffeineduck/rplay/executor"
	"github.com/caffeineduck/rplay/internal/config"
	"github.com/caffeineduck/rplay/language/r"
	"github.com/caffeineduck/rplay/playground"
	"github.com/caffeineduck/rplay/translate"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rplay [file]",
	Short: "Run R code in an isolated interpreter",
	Long: `rplay - Run R code in an isolated R session and get clean, readable results.

R runs either as a WebAssembly build under wazero (--engine R.wasm) or as a
host Rscript process (--rscript). Output, warnings, messages and plots are
captured in order, and errors are explained in plain language.`,
	Version:       rplay.Version,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRun, // Default to run command behavior
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errRunFailed is returned after a failed execution has already been
// reported to the user.
var errRunFailed = errors.New("execution failed")

var errNoEngine = errors.New("no R engine: set --engine to an R.wasm module or --rscript to an Rscript binary")

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default: ./rplay.yaml if present)")
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("locale", "", "Locale for error messages, e.g. en, fr (default: en)")
	pf.String("engine", "", "Path to the R WebAssembly module (R.wasm)")
	pf.String("rscript", "", "Run R natively with this Rscript binary instead of WebAssembly")
	pf.StringSlice("mount", nil, "Mount a host directory into the WASM interpreter guest:host (repeatable)")
	pf.String("memory", "", "Memory limit: 64mb, 256mb, 512mb, 1gb, 2gb")
	pf.Bool("no-cache", false, "Disable compilation cache")
	pf.Duration("timeout", 0, "Execution timeout (default 30s)")
	pf.Int("max-output", 0, "Truncate output beyond this many characters (default 10000)")

	// Add run-specific flags to root (for default command)
	addRunFlags(rootCmd)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("locale") {
		cfg.Locale, _ = flags.GetString("locale")
	}
	if flags.Changed("engine") {
		cfg.Engine.Module, _ = flags.GetString("engine")
	}
	if flags.Changed("rscript") {
		cfg.Engine.Rscript, _ = flags.GetString("rscript")
	}
	if flags.Changed("memory") {
		cfg.Engine.Memory, _ = flags.GetString("memory")
	}
	if flags.Changed("no-cache") {
		cfg.Engine.NoCache, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.RawTimeout = d.String()
	}
	if flags.Changed("max-output") {
		cfg.RawMaxOutput, _ = flags.GetInt("max-output")
	}
	if flags.Changed("mount") {
		specs, _ := flags.GetStringSlice("mount")
		for _, spec := range specs {
			m, err := parseMount(spec)
			if err != nil {
				return nil, err
			}
			cfg.Engine.Mounts = append(cfg.Engine.Mounts, m)
		}
	}
	return cfg, nil
}

func parseMount(spec string) (config.MountConfig, error) {
	guest, host, ok := strings.Cut(spec, ":")
	if !ok || guest == "" || host == "" {
		return config.MountConfig{}, fmt.Errorf("invalid mount spec %q (expected guest:host)", spec)
	}
	return config.MountConfig{Guest: guest, Host: host}, nil
}

func newLogger(cmd *cobra.Command) *log.Logger {
	logger := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix:          "rplay",
		ReportTimestamp: true,
	})
	level, _ := cmd.Flags().GetString("log-level")
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// resolveLanguage picks the R engine: an explicit Rscript, then an explicit
// WASM module, then Rscript found on PATH.
func resolveLanguage(cfg *config.Config) (*r.R, error) {
	switch {
	case cfg.Engine.Rscript != "":
		return r.New(r.WithRscript(cfg.Engine.Rscript)), nil
	case cfg.Engine.Module != "":
		return r.New(r.WithModule(cfg.Engine.Module)), nil
	}
	if path, err := exec.LookPath("Rscript"); err == nil {
		return r.New(r.WithRscript(path)), nil
	}
	return nil, errNoEngine
}

// runtime holds what every command needs to start R sessions.
type runtime struct {
	cfg         *config.Config
	logger      *log.Logger
	executor    *executor.Executor
	lang        *r.R
	sessionOpts []executor.SessionOption
}

func newRuntime(cmd *cobra.Command, precompile bool) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd)

	lang, err := resolveLanguage(cfg)
	if err != nil {
		return nil, err
	}

	var execOpts []executor.ExecutorOption
	if !cfg.Engine.NoCache {
		execOpts = append(execOpts, executor.WithDiskCache())
	}
	if cfg.Engine.Memory != "" {
		pages := executor.ParseMemoryLimit(cfg.Engine.Memory)
		if pages == 0 {
			return nil, fmt.Errorf("invalid memory limit %q", cfg.Engine.Memory)
		}
		execOpts = append(execOpts, executor.WithMemoryLimit(pages))
	}
	if precompile {
		execOpts = append(execOpts, executor.WithPrecompile(lang))
	}

	ex, err := executor.New(execOpts...)
	if err != nil {
		return nil, err
	}

	sessionOpts := []executor.SessionOption{
		executor.WithSessionTimeout(cfg.Timeout()),
		executor.WithStartTimeout(cfg.StartTimeout()),
		executor.WithSessionLogger(logger),
	}
	for _, m := range cfg.Engine.Mounts {
		sessionOpts = append(sessionOpts, executor.WithSessionMount(m.Guest, m.Host))
	}

	logger.Debug("runtime ready", "native", lang.Native(), "module", cfg.Engine.Module, "rscript", cfg.Engine.Rscript)

	return &runtime{
		cfg:         cfg,
		logger:      logger,
		executor:    ex,
		lang:        lang,
		sessionOpts: sessionOpts,
	}, nil
}

func (rt *runtime) playgroundOptions() []playground.Option {
	capt := capture.DefaultOptions()
	capt.ImageWidth, capt.ImageHeight = rt.cfg.ImageSize()

	return []playground.Option{
		playground.WithMaxOutput(rt.cfg.MaxOutput()),
		playground.WithCapture(capt),
		playground.WithTranslator(translate.New(rt.cfg.Language())),
		playground.WithLogger(rt.logger),
	}
}

// newPlayground starts an R session and returns a ready playground for it.
func (rt *runtime) newPlayground(ctx context.Context) (*playground.Playground, error) {
	pg := playground.New(
		playground.SessionStarter(rt.executor, rt.lang, rt.sessionOpts...),
		rt.playgroundOptions()...,
	)
	if err := pg.Initialize(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}

func (rt *runtime) Close() error {
	return rt.executor.Close()
}
