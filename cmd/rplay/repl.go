package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/caffeineduck/rplay/examples"
	"github.com/caffeineduck/rplay/playground"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

const (
	prompt         = "> "
	continuePrompt = "+ "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive R session with persistent state",
	Long: `Start an interactive REPL (Read-Eval-Print Loop) session.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

Commands:
  :reset           remove all variables
  :examples        list built-in examples
  :example <name>  run a built-in example
  :plots <dir>     save plots from later runs into dir

Type 'exit', 'quit' or 'q()' to end the session, or press Ctrl+D.
Ctrl+C during a run stops it and starts a fresh session.`,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.rplay_history)")
	rootCmd.AddCommand(replCmd)
}

// lineReader is the part of *readline.Instance the loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(string)
}

func runRepl(cmd *cobra.Command, args []string) error {
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".rplay_history")
	}

	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	pg, err := rt.newPlayground(cmd.Context())
	if err != nil {
		return err
	}
	defer pg.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "rplay R REPL (type 'exit' to quit, Ctrl+D to exit)")

	r := &repl{pg: pg, out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr()}
	return r.loop(cmd.Context(), rl)
}

type repl struct {
	pg       *playground.Playground
	out      io.Writer
	errOut   io.Writer
	plotsDir string
}

func (r *repl) loop(ctx context.Context, rl lineReader) error {
	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					rl.SetPrompt(prompt)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		// Handle multi-line input
		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			rl.SetPrompt(continuePrompt)
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			rl.SetPrompt(prompt)
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit" || line == "q()":
			return nil
		case strings.HasPrefix(line, ":"):
			r.command(ctx, line)
		default:
			r.run(ctx, line)
		}
	}
}

func (r *repl) command(ctx context.Context, line string) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "reset":
		if err := r.pg.Reset(ctx); err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(r.errOut, "session reset")
	case "examples":
		list, err := examples.List()
		if err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
			return
		}
		for _, ex := range list {
			fmt.Fprintf(r.out, "%-14s %s\n", ex.Name, ex.Title)
		}
	case "example":
		ex, ok := examples.Get(arg)
		if !ok {
			fmt.Fprintf(r.errOut, "Error: unknown example %q\n", arg)
			return
		}
		fmt.Fprintln(r.out, ex.Code)
		r.run(ctx, ex.Code)
	case "plots":
		r.plotsDir = arg
	default:
		fmt.Fprintf(r.errOut, "Error: unknown command :%s\n", name)
	}
}

func (r *repl) run(ctx context.Context, code string) {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	res := r.pg.Run(runCtx, code)
	stop()

	printResult(r.out, r.errOut, res)
	if r.plotsDir != "" && len(res.Images) > 0 {
		if _, err := savePlots(r.plotsDir, res.Images); err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
		}
	}

	// A cancelled or timed-out run tears the interpreter down.
	if !r.pg.Ready() {
		if err := r.pg.Initialize(ctx); err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(r.errOut, "(session restarted, variables were lost)")
	}
}
