package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-telemetry/internal/versioning"
)

func newDiffCmd() *cobra.Command {
	var unified bool
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Show the line diff between two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldContent, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			newContent, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}

			out := cmd.OutOrStdout()
			if !unified {
				fmt.Fprintln(out, versioning.GenerateDiff(string(oldContent), string(newContent)))
				return nil
			}

			patch, err := versioning.UnifiedDiff(string(oldContent), string(newContent), 1, 2)
			if err != nil {
				return err
			}
			fmt.Fprint(out, patch)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&unified, "unified", "u", false, "print a unified patch instead of the full annotated listing")
	return cmd
}
