package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/memsearch/memsearch/internal/output"
)

// newServeCmd keeps a collection open against the configured store
// backend until interrupted, so other tooling pointed at the same data
// directory sees a warm persistent backend.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the configured store and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			b, err := newBootstrap(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = b.Close() }()

			w := output.New(cmd.OutOrStdout())
			w.Successf("memsearchd ready (storage=%s, dimensions=%d)", b.cfg.Storage.Type, b.cfg.Storage.Dimensions)
			slog.Info("memsearchd serving", slog.String("storage", b.cfg.Storage.Type))

			<-ctx.Done()
			w.Noticef("shutting down, draining access-counter queue")
			return nil
		},
	}
	return cmd
}
