// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/Folio/services/folio/config"
	"github.com/AleutianAI/Folio/services/folio/telemetry"
)

// app holds what every command shares once the root has run.
type app struct {
	configPath string

	cfg    config.Config
	level  slog.LevelVar
	logger *slog.Logger

	shutdownTelemetry func(context.Context) error
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "folio",
		Short: "Folio client data core",
		Long: `folio runs the optimistic cache engine against a Folio API.

Every intent command applies its change locally first, calls the API, and
rolls back if the call fails. Use "folio mock-api" to serve a seeded API.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", os.Getenv(config.EnvPrefix+"CONFIG"),
		"YAML or JSON config file")

	root.AddCommand(
		a.mockAPICmd(),
		a.feedCmd(),
		a.likeCmd(),
		a.followCmd(),
		a.unfollowCmd(),
		a.blockCmd(),
		a.unblockCmd(),
		a.toReadCmd(),
		a.notificationsCmd(),
		a.unreadCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.level.Set(cfg.Observability.SlogLevel())
	a.logger = telemetry.NewLogger(cmd.ErrOrStderr(), &a.level)
	slog.SetDefault(a.logger)

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Observability)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown
	return nil
}

func (a *app) close() {
	if a.shutdownTelemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTelemetry(ctx); err != nil && a.logger != nil {
		a.logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
	}
}
