package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Neonotso/budget-agent/internal/amqp"
	"github.com/Neonotso/budget-agent/internal/backend"
	"github.com/Neonotso/budget-agent/internal/storage"
	"github.com/Neonotso/budget-agent/internal/worker"
)

func (a *app) mirrorCmd() *cobra.Command {
	var replicaPath string
	var resync bool

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Keep a SQLite replica of the ledger in step with change events",
		Long: `mirror consumes ledger events from AMQP_EXCHANGE and applies them to a
SQLite replica. --resync first copies the configured backend into the
replica, which recovers events published while the mirror was down. Set
AMQP_QUEUE so events are queued between runs.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipLedger: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}
			if replicaPath == "" {
				replicaPath = a.cfg.SQLiteDBPath
			}
			if replicaPath == "" {
				return errors.New("no replica path: use --replica or SQLITE_DB_PATH")
			}
			if a.cfg.DataBackend == string(backend.SQLiteBackend) && samePath(replicaPath, a.cfg.SQLiteDBPath) {
				return fmt.Errorf("replica %s is the primary database", replicaPath)
			}
			if a.cfg.AMQPQueue == "" {
				a.logger.Warn("AMQP_QUEUE is not set, events published while the mirror is stopped are lost")
			}

			replica, err := storage.Open(replicaPath, a.logger)
			if err != nil {
				return err
			}
			defer replica.Close()

			m := worker.NewMirror(replica, a.cfg.TransactionsSheet, a.cfg.BudgetsSheet, a.logger)
			if err := m.Prepare(ctx); err != nil {
				return err
			}
			if resync {
				if err := a.resyncFromPrimary(ctx, m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Replica %s resynced.\n", replicaPath)
			}

			client, err := amqp.DialWithRetry(ctx, a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue, 5, a.logger)
			if err != nil {
				return err
			}
			defer client.Close()

			err = client.Consume(ctx, m.HandleLedgerMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&replicaPath, "replica", "", "replica SQLite file (default SQLITE_DB_PATH)")
	cmd.Flags().BoolVar(&resync, "resync", false, "copy the configured backend into the replica before consuming")
	return cmd
}

func (a *app) resyncFromPrimary(ctx context.Context, m *worker.Mirror) error {
	bcfg, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return err
	}
	primary, err := backend.NewFactory(a.logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer primary.Close()
	return m.Resync(ctx, primary.Store)
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	pa, errA := filepath.Abs(a)
	pb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return pa == pb
}
