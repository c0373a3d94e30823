// Package cli implements the wavelet command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/config"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/logging"
)

type rootOptions struct {
	configPath string
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "wavelet",
		Short:         "Play music from your library with desktop media controls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file read after the default ones")

	cmd.AddCommand(newDaemonCmd(opts))
	cmd.AddCommand(newCatalogCmd(opts))
	cmd.AddCommand(newPlaylistCmd(opts))
	return cmd
}

// loadConfig reads the default config files, then --config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	paths := config.Paths()
	if o.configPath != "" {
		if _, err := os.Stat(o.configPath); err != nil {
			return nil, errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
		}
		paths = append(paths, o.configPath)
	}
	cfg, err := config.LoadFrom(paths...)
	if err != nil {
		return nil, errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
	}
	return cfg, nil
}

// setup loads the config and builds the logger. The returned function
// flushes the logger.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *zap.Logger, func() error, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, closeLog, err := logging.New(cfg.GetLogConfig(), cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, nil, errors.New(errmsg.Format(errmsg.OpInitialize, err))
	}
	return cfg, log, closeLog, nil
}

// runOneShot starts an fx app with the given options, runs fn, then stops it.
// Values fn needs are pulled out of the graph with fx.Populate.
func runOneShot(ctx context.Context, cfg *config.Config, log *zap.Logger, fn func(context.Context) error, opts ...fx.Option) error {
	fxApp := fx.New(
		fx.Supply(cfg, log),
		fx.NopLogger,
		fx.Options(opts...),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}
	if err := fxApp.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer cancel()
	return errors.Join(runErr, fxApp.Stop(stopCtx))
}
