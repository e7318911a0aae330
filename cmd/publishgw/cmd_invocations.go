package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eduba/publishgw/internal/runlog"
	"github.com/eduba/publishgw/internal/storage"
)

func newInvocationsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invocations",
		Aliases: []string{"inv"},
		Short:   "Read the invocation run log",
	}
	cmd.AddCommand(
		newInvocationsListCmd(opts),
		newInvocationsShowCmd(opts),
	)
	return cmd
}

// withRunLog opens the state database for the duration of fn.
func withRunLog(ctx context.Context, opts *globalOptions, fn func(*runlog.Store) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer db.Close()
	return fn(runlog.New(db))
}

func newInvocationsListCmd(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent invocations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunLog(cmd.Context(), opts, func(store *runlog.Store) error {
				records, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), records)
				}
				return writeInvocationTable(cmd.OutOrStdout(), records)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newInvocationsShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one invocation including captured stderr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunLog(cmd.Context(), opts, func(store *runlog.Store) error {
				rec, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, runlog.ErrNotFound) {
					return fmt.Errorf("invocation %q not found", args[0])
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeInvocationTable(w io.Writer, records []*runlog.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tCOMPANY\tSLUG\tDURATION\tCREATED\tURL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.Status, dash(r.Company), dash(r.Slug),
			formatDuration(r.DurationMS), r.CreatedAt.Format(time.DateTime), dashPtr(r.PublishedURL))
	}
	return tw.Flush()
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func dashPtr(s *string) string {
	if s == nil {
		return "-"
	}
	return dash(*s)
}
