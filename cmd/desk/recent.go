package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-desk/internal/adapters/export"
	"github.com/kirillkom/invoice-desk/internal/bootstrap"
	"github.com/kirillkom/invoice-desk/internal/infrastructure/ocrapi"
)

func recentCmd(opts *globalOptions) *cobra.Command {
	var (
		limit    int
		xlsxPath string
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently processed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.RecentLimit
			}
			client := ocrapi.NewWithOptions(cfg.OCRAPIURL, ocrapi.Options{
				Timeout:            cfg.HTTPTimeout(),
				ResilienceExecutor: bootstrap.NewExecutor(cfg, logger, nil),
				Logger:             logger,
			})

			docs, err := client.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if xlsxPath == "" {
				printRecent(cmd.OutOrStdout(), docs)
				return nil
			}

			f, err := os.Create(xlsxPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", xlsxPath, err)
			}
			if err := export.WriteRecentXLSX(f, docs); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", xlsxPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d documents to %s\n", len(docs), xlsxPath)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of documents; defaults to RECENT_LIMIT")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write the list to an XLSX workbook instead of stdout")
	return cmd
}
