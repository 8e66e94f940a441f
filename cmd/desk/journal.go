package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-desk/internal/bootstrap"
)

func journalCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal <document-id>",
		Short: "List journaled operator actions for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			repo, db, err := bootstrap.OpenJournal(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if repo == nil {
				return errors.New("POSTGRES_DSN is not set")
			}
			defer db.Close()

			entries, err := repo.ListByDocument(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printJournal(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	return cmd
}
