// Package cli implements the salesync command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/JonMunkholm/salesync/internal/config"
	"github.com/JonMunkholm/salesync/internal/ingest"
	"github.com/JonMunkholm/salesync/internal/logging"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/spf13/cobra"
)

// StoreOpener opens the configured store.
type StoreOpener func(ctx context.Context, cfg *config.Config) (store.Store, error)

// RootOptions holds global flags and dependencies for all commands.
type RootOptions struct {
	Config  *config.Config
	Verbose bool
	Format  string

	// OpenStore defaults to OpenStore; tests substitute their own.
	OpenStore StoreOpener
}

// NewRootCommand creates the root command. cfg must already be loaded and
// validated.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	return newRootCommand(&RootOptions{Config: cfg, OpenStore: OpenStore})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salesync",
		Short: "Reconcile sales exports into companies, people, products and orders",
		Long: `salesync ingests sales detail exports and reconciles every line into
canonical companies, people, products, orders and line items.

Re-running a file is safe: orders are keyed by order number and existing
rows are reused. Use --dry-run to see every decision without writing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ingest.Formats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ingest.Formats))
			}
			level := opts.Config.Logging.Level
			if opts.Verbose {
				level = "debug"
			}
			logging.SetupWriter(cmd.ErrOrStderr(), level, opts.Config.Logging.Format)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every decision (debug level)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", ingest.FormatText, "output format (text|json|yaml)")

	cmd.AddCommand(newIngestCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newInitDBCommand(opts))

	return cmd
}

// Execute runs the root command with args and returns the process exit code.
// Errors are printed to errOut.
func Execute(ctx context.Context, cmd *cobra.Command, args []string, out, errOut io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(errOut, "Error:", err)
	}
	return GetExitCode(err)
}

// withStore opens the store, runs fn and closes the store.
func withStore(cmd *cobra.Command, opts *RootOptions, fn func(store.Store) error) error {
	st, err := opts.OpenStore(cmd.Context(), opts.Config)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to open store", err)
	}
	defer st.Close()
	return fn(st)
}
