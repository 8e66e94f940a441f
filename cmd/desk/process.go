package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-desk/internal/bootstrap"
	"github.com/kirillkom/invoice-desk/internal/core/domain"
	"github.com/kirillkom/invoice-desk/internal/core/ports"
)

type fieldUpdate struct {
	field domain.FieldName
	value string
}

func parseFieldUpdates(raw []string) ([]fieldUpdate, error) {
	out := make([]fieldUpdate, 0, len(raw))
	for _, item := range raw {
		name, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected field=value", item)
		}
		field, err := domain.ParseFieldName(name)
		if err != nil {
			return nil, err
		}
		out = append(out, fieldUpdate{field: field, value: value})
	}
	return out, nil
}

func processCmd(opts *globalOptions) *cobra.Command {
	var (
		sets   []string
		submit bool
	)

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Upload a file, wait for recognition, apply corrections and optionally submit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseFieldUpdates(sets)
			if err != nil {
				return err
			}
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			file, err := app.Picker.Pick(ctx, args[0])
			if err != nil {
				return err
			}
			return runProcess(ctx, app.Session, file, updates, submit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Correct a field after recognition (field=value, repeatable)")
	cmd.Flags().BoolVar(&submit, "submit", false, "Send the document to bookkeeping after corrections")
	return cmd
}

// runProcess drives one document through the desk. A rejected correction is reported
// and the remaining steps still run; submission is skipped when any correction failed.
func runProcess(ctx context.Context, desk ports.InvoiceDesk, file *domain.LocalFile, updates []fieldUpdate, submit bool, out io.Writer) error {
	handle, err := desk.Upload(ctx, file)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uploaded %s as document %s, waiting for recognition...\n", file.Name, handle.DocumentID())

	select {
	case <-handle.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := handle.Err(); err != nil {
		printSnapshot(out, desk.Snapshot(), desk.CanSubmit())
		return err
	}

	var correctionErrs []error
	for _, update := range updates {
		if err := desk.Correct(ctx, update.field, update.value); err != nil {
			fmt.Fprintf(out, "correction %s=%q rejected: %s\n", update.field, update.value, domain.UserMessage(err))
			correctionErrs = append(correctionErrs, err)
		}
	}

	if submit {
		switch {
		case len(correctionErrs) > 0:
			fmt.Fprintln(out, "not submitting: some corrections were rejected")
		default:
			if err := desk.Submit(ctx); err != nil {
				printSnapshot(out, desk.Snapshot(), desk.CanSubmit())
				return err
			}
		}
	}

	printSnapshot(out, desk.Snapshot(), desk.CanSubmit())
	return errors.Join(correctionErrs...)
}
