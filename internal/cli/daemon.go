package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	req := startRequest{Index: -1}

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the player with notification and media key controls",
		Long: `Load the catalog and playlists, then wait for commands from the
now-playing notification and MPRIS clients until interrupted.

With --playlist or --index, start playing once the catalog is loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closeLog, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			fxApp := fx.New(
				fx.Supply(cfg, log, req),
				fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log.Named("fx")}
				}),
				DaemonOptions,
			)
			return runUntilSignal(cmd.Context(), fxApp, log)
		},
	}
	cmd.Flags().StringVar(&req.PlaylistID, "playlist", "", "playlist id to play on start")
	cmd.Flags().IntVar(&req.Index, "index", -1,
		"track index to play on start (catalog, or the --playlist)")
	return cmd
}

// runUntilSignal starts fxApp and stops it on SIGINT or SIGTERM.
func runUntilSignal(parent context.Context, fxApp *fx.App, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	log.Info("wavelet started")

	<-ctx.Done()
	log.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer stopCancel()
	return fxApp.Stop(stopCtx)
}
