package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-telemetry/internal/core/domain"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/config"
	"github.com/tjfontaine/polyglot-telemetry/internal/storage/sqldb"
	"github.com/tjfontaine/polyglot-telemetry/internal/versioning"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath   string
		asJSON   bool
		showDiff bool
	)
	cmd := &cobra.Command{
		Use:   "history [content-ref]",
		Short: "List captured versions from a SQLite store, newest first",
		Long:  "Lists the history of one content ref, or of every stream when no ref is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqldb.NewSQLite(dbPath)
			if err != nil {
				return fmt.Errorf("opening %s: %w", dbPath, err)
			}
			defer store.Close()

			versions := versioning.New(store, nil, nil)
			ctx := cmd.Context()

			var recs []*domain.VersionRecord
			if len(args) == 1 {
				recs, err = versions.GetVersions(ctx, args[0])
			} else {
				recs, err = versions.GetAllVersions(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "no versions")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tVERSION\tREF\tTYPE\tCOMMITTER\tTIME\tSUMMARY")
			for _, r := range recs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Sequence, r.VersionID, r.ContentRef, r.ContentType,
					r.CommitterID, r.Timestamp.Format(time.RFC3339), r.Summary)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if showDiff {
				for _, r := range recs {
					if r.Diff == "" {
						continue
					}
					fmt.Fprintf(out, "\n%s\n", r.Diff)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", config.DefaultSQLitePath, "SQLite database path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print each version's diff against its predecessor")
	return cmd
}
