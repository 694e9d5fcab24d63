package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/heavy-vote/heavy"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/app"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/batch"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/config"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/majority"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var cfgErr *heavy.StartupConfigError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "heavy",
		Short:         "Fan a prompt out to several model agents and vote on the result",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default searches ./config.yaml and the user config dir)")

	root.AddCommand(newChatCmd(opts), newBatchCmd(opts), newWatchCmd(opts))
	return root
}

// setup loads config, builds the logger and the application. Callers close
// the application.
func setup(ctx context.Context, opts *rootOptions) (*app.App, zerolog.Logger, error) {
	bootstrap := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		bootstrap.Error().Err(err).Msg("invalid configuration")
		return nil, bootstrap, err
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)

	router, err := app.NewRouter(ctx, cfg.Provider, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create model router")
		return nil, logger, err
	}

	a, err := app.New(ctx, cfg, router, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize")
		return nil, logger, err
	}
	return a, logger, nil
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Serve the chat surface over HTTP and websocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, logger, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.Config.Server.Addr = addr
			}
			srv, err := a.ChatServer()
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

type batchOptions struct {
	mode     string
	prompt   string
	finalize bool
}

func (b *batchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&b.mode, "mode", "", "aggregation mode: aspects or numeric (default majority.mode)")
	cmd.Flags().StringVar(&b.prompt, "prompt", "", "prompt file (overrides batch.prompt_file)")
	cmd.Flags().BoolVar(&b.finalize, "finalize", false, "run the final editor pass (numeric mode defaults to off)")
}

// runner resolves mode and finalize against config. Aspects mode finalizes
// unless disabled in config; numeric mode only with --finalize.
func (b *batchOptions) runner(cmd *cobra.Command, a *app.App) (*batch.Runner, error) {
	modeValue := a.Config.Majority.Mode
	if b.mode != "" {
		modeValue = b.mode
	}
	mode, err := app.ParseMode(modeValue)
	if err != nil {
		return nil, &heavy.StartupConfigError{Field: "mode", Reason: err.Error()}
	}

	if b.prompt != "" {
		a.Config.Batch.PromptFile = b.prompt
	}

	finalize := a.Config.Majority.Finalize && mode == majority.ModeAspects
	if cmd.Flags().Changed("finalize") {
		finalize = b.finalize
	}

	return a.BatchRunner(mode, finalize), nil
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	bopts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the prompt file once and write the debug and output files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, logger, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := bopts.runner(cmd, a)
			if err != nil {
				logger.Error().Err(err).Msg("invalid flags")
				return err
			}

			report, err := r.RunOnce(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("batch run failed")
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), report.OutputPath)
			return nil
		},
	}
	bopts.bind(cmd)
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	bopts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the batch pipeline whenever the prompt file changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, logger, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := bopts.runner(cmd, a)
			if err != nil {
				logger.Error().Err(err).Msg("invalid flags")
				return err
			}
			return r.Watch(ctx)
		},
	}
	bopts.bind(cmd)
	return cmd
}
