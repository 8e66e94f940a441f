package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/invoice-desk/internal/bootstrap"
	"github.com/kirillkom/invoice-desk/internal/core/domain"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow session state published by a running desk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			bus, err := bootstrap.OpenStateBus(cfg, bootstrap.NewExecutor(cfg, logger, nil), logger)
			if err != nil {
				return err
			}
			if bus == nil {
				return errors.New("NATS_URL is not set")
			}
			defer bus.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err = bus.SubscribeState(ctx, func(_ context.Context, snap domain.Snapshot) error {
				fmt.Fprintln(out, summarizeSnapshot(snap))
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func summarizeSnapshot(snap domain.Snapshot) string {
	line := fmt.Sprintf("gen=%d busy=%t recent=%d", snap.Generation, snap.Busy, len(snap.Recent))
	if doc := snap.Current; doc != nil {
		line += fmt.Sprintf(" document=%s status=%q total=%s", doc.ID, domain.PresentStatus(doc.Status).Label, doc.Field(domain.FieldTotalAmount))
	}
	if snap.Error != "" {
		line += fmt.Sprintf(" error=%q", snap.Error)
	}
	if snap.Notice != "" {
		line += fmt.Sprintf(" notice=%q", snap.Notice)
	}
	return line
}
