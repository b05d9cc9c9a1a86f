package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/ingest"
	"github.com/JonMunkholm/salesync/internal/metrics"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/JonMunkholm/salesync/internal/web"
	"github.com/spf13/cobra"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	DryRun      bool
	Limit       int
	MetricsAddr string
}

func newIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <csv>",
		Short: "Ingest a sales detail export",
		Long: `Ingest a "Sales by Customer Detail" export.

Every row is parsed and validated; valid rows are grouped into orders and
their customer, company and products are found or created. Orders whose
number already exists are skipped, so a file can be ingested any number of
times.

With --dry-run nothing is written: every decision the live run would make
is printed, with simulated ids for rows that would be created.

Example:
  salesync ingest exports/sales.csv --dry-run
  salesync ingest exports/sales.csv --format json --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report decisions without writing")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "process at most N valid records (0 = all)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", rootOpts.Config.Metrics.Addr, "serve /metrics, /healthz and /status on this address during the run")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions, path string) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must not be negative")
	}
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "cannot read input file", err)
	}

	return withStore(cmd, opts.RootOptions, func(st store.Store) error {
		registry := metrics.NewRegistry()
		tracker := ingest.NewTracker()

		if opts.MetricsAddr != "" {
			shutdown := startListener(st, tracker, registry, opts)
			defer shutdown()
		}

		cfg := opts.Config.Ingest
		coordinator := ingest.NewCoordinator(st, ingest.Options{
			DryRun:          opts.DryRun,
			Limit:           opts.Limit,
			FBASource:       cfg.FBASource,
			SyntheticDomain: cfg.SyntheticDomain,
			Read: core.ReadOptions{
				MaxFileSize:      cfg.MaxFileSize,
				HeaderSearchRows: cfg.HeaderSearchRows,
			},
		}, registry, tracker)

		res, runErr := coordinator.IngestFile(cmd.Context(), path)
		if res != nil {
			if err := ingest.WriteReport(cmd.OutOrStdout(), res, opts.Format); err != nil {
				return WrapExitError(ExitFailure, "failed to write report", err)
			}
		}
		if runErr != nil {
			return WrapExitError(ExitFailure, core.FormatUserError(runErr), runErr)
		}
		return nil
	})
}

// startListener serves metrics and status in the background and returns a
// function that stops it.
func startListener(st store.Store, tracker *ingest.Tracker, registry *metrics.Registry, opts *IngestOptions) func() {
	mcfg := opts.Config.Metrics
	server := web.NewServer(st, tracker, registry.Handler(), web.Options{
		ReadTimeout:    mcfg.ReadTimeout,
		APIKeys:        mcfg.APIKeys,
		TrustedProxies: mcfg.TrustedProxies,
	})

	go func() {
		if err := server.Start(opts.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "addr", opts.MetricsAddr, "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), mcfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Warn("metrics listener shutdown", "error", err)
		}
	}
}
