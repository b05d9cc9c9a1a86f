package cli

import (
	"fmt"

	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent live ingestion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return NewExitError(ExitCommandError, "--limit must be at least 1")
			}
			return withStore(cmd, opts, func(st store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), limit)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list runs", err)
				}
				return writeRuns(cmd.OutOrStdout(), runs, opts.Format)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func newInitDBCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the schema (idempotent)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st store.Store) error {
				if err := st.Init(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "failed to apply schema", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}
