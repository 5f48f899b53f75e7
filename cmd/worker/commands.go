package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"variant-merger/internal/app"
	"variant-merger/internal/catalog"
	"variant-merger/internal/config"
	"variant-merger/internal/service"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Drive the variant merge pipeline",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")

	cmd.AddCommand(
		newRunCmd(opts),
		newTickCmd(opts),
		newSweepCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newStatusCmd(opts),
		newCleanupCmd(opts),
		newSeedCmd(opts),
	)
	return cmd
}

// withApp loads config, builds the app and runs fn with a signal-aware context
func withApp(opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logger.Error("command failed", zap.Error(err))
		return err
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the drain, sweep and cleanup loops until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				return a.Scheduler.Run(ctx)
			})
		},
	}
}

func newTickCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Perform one drain tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				result, err := a.Controller.Tick(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Start an automatic catalog sweep if no run is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				err := a.Controller.Sweep(ctx)
				if errors.Is(err, service.ErrAlreadyRunning) || errors.Is(err, service.ErrRunStopped) {
					fmt.Fprintf(cmd.OutOrStdout(), "sweep skipped: %v\n", err)
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sweep started")
				return nil
			})
		},
	}
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start [item-id...]",
		Short: "Queue the given items, or sweep the catalog, and start the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				result, err := a.Controller.Start(ctx, args)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				return a.Controller.Stop(ctx)
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print run status, queue counts and recent log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				status, err := a.Controller.Status(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, status)
			})
		},
	}
}

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	var cleanupType string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Apply the retention policy, or clean one category with --type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				if cleanupType == "" {
					result, err := a.Cleaner.Run(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, result)
				}

				t, err := service.ParseCleanupType(cleanupType)
				if err != nil {
					return err
				}
				n, err := a.Cleaner.Cleanup(ctx, t)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleaned %d jobs (%s)\n", n, t)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cleanupType, "type", "", "all, completed, failed or stuck")
	return cmd
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog items from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := catalog.LoadFixture(file)
			if err != nil {
				return err
			}
			return withApp(opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Catalog.Seed(ctx, fixture)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d items\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "fixture file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
