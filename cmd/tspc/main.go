// Command tspc compiles story source units into the JSON document the
// runtime consumes.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var noColor bool

	rootCmd := &cobra.Command{
		Use:           "tspc",
		Short:         "Compile story sources into a runtime document",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newCompileCmd(&noColor))
	rootCmd.AddCommand(newCheckCmd(&noColor))

	return rootCmd
}

func newCompileCmd(noColor *bool) *cobra.Command {
	var (
		output string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "compile [files...]",
		Short: "Compile source units, in argument order, into one document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			useColor := shouldUseColor(*noColor)
			if watch {
				return watchLoop(args, output, useColor)
			}
			return compileOnce(args, output, useColor)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "story.json", "Output document path ('-' for stdout)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Recompile whenever a source file changes")

	return cmd
}

func newCheckCmd(noColor *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "check [files...]",
		Short: "Compile and self-check without writing output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkOnly(args, shouldUseColor(*noColor))
		},
	}
}
