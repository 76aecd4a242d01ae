// Command ledger is the operator CLI for the budget ledger. It drives the
// same ledger manager as the tool server, against whichever backend the
// environment selects.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Neonotso/budget-agent/internal/backend"
	"github.com/Neonotso/budget-agent/internal/cli"
	"github.com/Neonotso/budget-agent/internal/config"
	"github.com/Neonotso/budget-agent/internal/ledger"
	"github.com/Neonotso/budget-agent/internal/log"
)

// skipLedger marks commands that do not need a connected ledger.
const skipLedger = "skip-ledger"

// connectFunc opens the ledger for a command and returns a cleanup func.
type connectFunc func(ctx context.Context, cfg *config.Config, logger *log.Logger) (*ledger.Manager, func() error, error)

type app struct {
	cfg     *config.Config
	logger  *log.Logger
	ledger  *ledger.Manager
	cleanup func() error
	now     func() time.Time

	backend string
	jsonOut bool
	verbose bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(connectLedger).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(connect connectFunc) *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Inspect and change the budget ledger",
		Long:          `ledger reads and writes the Transactions and Budgets tables of the budget ledger, exports them and follows change events.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			a.cfg = config.Load()
			if a.backend != "" {
				a.cfg.DataBackend = a.backend
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			level := "warn"
			if a.verbose {
				level = "debug"
			}
			a.logger = log.New(log.Config{
				Level:     level,
				Format:    a.cfg.LogFormat,
				Component: log.ComponentCLI,
				Output:    cmd.ErrOrStderr(),
			})
			log.SetDefault(a.logger)

			if cmd.Annotations[skipLedger] != "" {
				return nil
			}
			m, cleanup, err := connect(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			a.ledger, a.cleanup = m, cleanup
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.cleanup == nil {
				return nil
			}
			return a.cleanup()
		},
	}

	root.PersistentFlags().StringVar(&a.backend, "backend", "", "data backend ("+fmt.Sprint(backend.GetBackendTypeStrings())+"), overrides DATA_BACKEND")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		a.addCmd(),
		a.listCmd(),
		a.findCmd(),
		a.editCmd(),
		a.deleteCmd(),
		a.budgetCmd(),
		a.categoriesCmd(),
		a.summaryCmd(),
		a.exportCmd(),
		a.watchCmd(),
		a.mirrorCmd(),
	)
	return root
}

// connectLedger builds the configured backend and connects a manager to it.
func connectLedger(ctx context.Context, cfg *config.Config, logger *log.Logger) (*ledger.Manager, func() error, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	factory := backend.NewFactory(logger)
	store, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}
	events, err := factory.CreatePublisher(ctx, bcfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	opts := append(cfg.LedgerOptions(), ledger.WithLogger(logger))
	if events.Publisher != nil {
		opts = append(opts, ledger.WithPublisher(events.Publisher))
	}
	cleanup := func() error {
		if events.Cleanup != nil {
			_ = events.Cleanup()
		}
		return store.Close()
	}

	m := ledger.New(store.Store, opts...)
	if err := m.Connect(ctx); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return m, cleanup, nil
}

func (a *app) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
