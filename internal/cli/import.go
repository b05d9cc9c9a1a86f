package cli

import (
	"context"
	"os"

	"github.com/JonMunkholm/salesync/internal/core"
	"github.com/JonMunkholm/salesync/internal/ingest"
	"github.com/JonMunkholm/salesync/internal/store"
	"github.com/spf13/cobra"
)

type importFunc func(im *ingest.Importer, ctx context.Context, path string) (*ingest.ImportResult, error)

func newImportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk-load auxiliary exports",
		Long: `Bulk-load the auxiliary exports: the people list, the product catalog
and combined order rows. These always write; existing rows are reused by
natural key (email, domain, SKU, order number).`,
	}

	cmd.AddCommand(newImportSubcommand(opts, "people <csv>", "Import companies and people from a contact export",
		(*ingest.Importer).ImportPeople))
	cmd.AddCommand(newImportSubcommand(opts, "products <csv>", "Upsert the product catalog",
		(*ingest.Importer).ImportProducts))
	cmd.AddCommand(newImportSubcommand(opts, "combined-orders <csv>", "Import orders from a combined order export",
		(*ingest.Importer).ImportCombinedOrders))

	return cmd
}

func newImportSubcommand(opts *RootOptions, use, short string, run importFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return WrapExitError(ExitCommandError, "cannot read input file", err)
			}

			return withStore(cmd, opts, func(st store.Store) error {
				cfg := opts.Config.Ingest
				im := ingest.NewImporter(st, core.ReadOptions{
					MaxFileSize:      cfg.MaxFileSize,
					HeaderSearchRows: cfg.HeaderSearchRows,
				}, cfg.BatchSize)

				res, err := run(im, cmd.Context(), path)
				if err != nil {
					return WrapExitError(ExitFailure, core.FormatUserError(err), err)
				}
				if err := writeImportResult(cmd.OutOrStdout(), res, opts.Format); err != nil {
					return WrapExitError(ExitFailure, "failed to write report", err)
				}
				return nil
			})
		},
	}
}
