package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Neonotso/budget-agent/internal/amqp"
	"github.com/Neonotso/budget-agent/internal/core"
)

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "watch",
		Short:       "Print ledger change events as they are published",
		Long:        `watch consumes the AMQP_EXCHANGE topic exchange and prints one line per ledger mutation until interrupted. AMQP_QUEUE selects a durable queue; without it a private queue is used.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipLedger: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}
			client, err := amqp.DialWithRetry(cmd.Context(), a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, 5, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			w := cmd.OutOrStdout()
			err = client.Consume(cmd.Context(), func(_ context.Context, msg *amqp.LedgerMessage) error {
				if a.jsonOut {
					return a.printJSON(w, msg)
				}
				_, err := fmt.Fprintln(w, formatEvent(msg))
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func formatEvent(msg *amqp.LedgerMessage) string {
	at := msg.At.Local().Format("15:04:05")
	switch {
	case msg.Transaction != nil && msg.Previous != nil:
		return fmt.Sprintf("%s %s %s -> %s", at, msg.Op, describe(*msg.Previous), describe(*msg.Transaction))
	case msg.Transaction != nil:
		return fmt.Sprintf("%s %s row %d %s", at, msg.Op, msg.Transaction.RowIndex, describe(*msg.Transaction))
	case msg.Budget != nil:
		return fmt.Sprintf("%s %s %s %s", at, msg.Op, msg.Budget.Category, core.FormatAmount(msg.Budget.Limit))
	}
	return fmt.Sprintf("%s %s", at, msg.Op)
}
