package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/vidforge/internal/logger"
	"github.com/marmos91/vidforge/pkg/adapter/upload"
	"github.com/marmos91/vidforge/pkg/config"
	"github.com/marmos91/vidforge/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the upload server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.ConfigureLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	logger.Info("vidforge %s starting", currentVersion())

	writer, gate, err := config.CreateStorage(&cfg.Storage)
	if err != nil {
		return err
	}

	proc, err := config.CreateProcessor(&cfg.Processing)
	if err != nil {
		return err
	}
	defer proc.Cleanup()

	store, err := config.CreateJobStore(ctx, &cfg.Jobs)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close job store: %v", err)
		}
	}()

	archiver, err := config.CreateArchiver(ctx, &cfg.Archive)
	if err != nil {
		return err
	}

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		metricsResult.Server.Handle("/storage", gate)
	}

	adapters, err := config.CreateAdapters(cfg, upload.Dependencies{
		Capacity:  gate,
		Storage:   writer,
		Processor: proc,
		Jobs:      store,
		Archive:   archiver,
	}, metricsResult.UploadMetrics)
	if err != nil {
		return err
	}

	srv := server.New(metricsResult.Server, cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return err
		}
	}

	if configPath != "" || config.ConfigExists() {
		if err := config.Watch(configPath, config.ReloadHandler(gate)); err != nil {
			logger.Warn("Config hot reload disabled: %v", err)
		}
	}

	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("vidforge stopped")
		return nil
	}
	return err
}
