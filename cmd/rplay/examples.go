package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/caffeineduck/rplay/examples"
	"github.com/spf13/cobra"
)

var examplesCmd = &cobra.Command{
	Use:   "examples [name]",
	Short: "List built-in examples or print one",
	Long: `Without arguments, list the built-in R examples. With a name, print
that example's code. Run one with: rplay run --example <name>`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExamples,
}

func init() {
	rootCmd.AddCommand(examplesCmd)
}

func runExamples(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		ex, ok := examples.Get(args[0])
		if !ok {
			return fmt.Errorf("unknown example %q", args[0])
		}
		fmt.Fprintf(out, "# %s\n# %s\n\n%s\n", ex.Title, ex.Description, ex.Code)
		return nil
	}

	list, err := examples.List()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, ex := range list {
		fmt.Fprintf(tw, "%s\t%s\n", ex.Name, ex.Title)
	}
	return tw.Flush()
}
