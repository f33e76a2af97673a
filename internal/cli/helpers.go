package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fluentia/fluentia/internal/app/engagement"
	"github.com/fluentia/fluentia/internal/daemon"
	"github.com/fluentia/fluentia/internal/pkg/logger"
)

// engine is what one-shot commands need: the orchestrator over an open store.
type engine struct {
	cfg    daemon.Config
	store  daemon.Store
	awards *engagement.Orchestrator
}

func (e *engine) Close() { _ = e.store.Close() }

// openEngine loads the config and opens the store. One-shot commands log
// nothing below warn.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Logging.Mode, "warn")
	if err != nil {
		log = logger.Nop()
	}
	store, err := daemon.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	awards, err := daemon.BuildOrchestrator(cfg, store, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	return &engine{cfg: cfg, store: store, awards: awards}, nil
}

func newTable(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
}

func requireUser(user string) error {
	if user == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
