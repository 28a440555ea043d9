package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/caffeineduck/rplay/capture"
	"github.com/caffeineduck/rplay/examples"
	"github.com/caffeineduck/rplay/playground"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run R code once and print the result",
	Long: `Execute R code in a fresh interpreter session.

Code can be provided via:
  - File argument: rplay run script.R
  - Inline flag: rplay run -c 'mean(1:10)'
  - Built-in example: rplay run --example regression
  - Stdin: echo 'summary(cars)' | rplay run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().StringP("example", "e", "", "Run a built-in example by name")
	cmd.Flags().String("plots", "", "Directory to write captured plots to")
	cmd.Flags().Bool("json", false, "Print the full result as JSON")
}

// readSource resolves the code to run from flags, a file argument or stdin.
// An empty string with a nil error means there is nothing to run.
func readSource(cmd *cobra.Command, args []string) (string, error) {
	code, _ := cmd.Flags().GetString("code")
	example, _ := cmd.Flags().GetString("example")

	switch {
	case code != "":
		return code, nil
	case example != "":
		ex, ok := examples.Get(example)
		if !ok {
			return "", fmt.Errorf("unknown example %q", example)
		}
		return ex.Code, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// Check if stdin has data (not a terminal)
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	source, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if source == "" {
		return cmd.Help()
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	plotsDir, _ := cmd.Flags().GetString("plots")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rt, err := newRuntime(cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	pg, err := rt.newPlayground(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	res := pg.Run(ctx, source)

	if plotsDir != "" && len(res.Images) > 0 {
		paths, err := savePlots(plotsDir, res.Images)
		if err != nil {
			return err
		}
		for _, p := range paths {
			rt.logger.Info("plot saved", "path", p)
		}
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
	}

	if !res.Success {
		return errRunFailed
	}
	return nil
}

func printResult(out, errOut io.Writer, res playground.Result) {
	if res.Output != "" {
		fmt.Fprintln(out, res.Output)
	}
	if res.Truncated {
		fmt.Fprintln(errOut, "(output truncated)")
	}
	if n := len(res.Images); n > 0 {
		fmt.Fprintf(errOut, "[%d plot(s) captured]\n", n)
	}
	if !res.Success {
		fmt.Fprintln(errOut, res.Error)
	}
}

// savePlots writes images to dir as plot-001.png, plot-002.png and so on.
func savePlots(dir string, images []capture.Image) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(images))
	for i, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("plot-%03d.%s", i+1, img.Format))
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
