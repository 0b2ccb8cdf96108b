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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/Folio/services/folio/mockapi"
)

func (a *app) mockAPICmd() *cobra.Command {
	var (
		addr    string
		users   int
		reviews int
		latency time.Duration
		debug   bool
	)
	cmd := &cobra.Command{
		Use:   "mock-api",
		Short: "Serve a seeded in-memory Folio API",
		Long: `Serves the Folio REST API and push stream from memory.

The viewer is user 1. Users 4, 7, 10 and so on are private, so following
one creates a pending request. Failures can be injected with
POST /admin/fail {"op":"like","status":500,"count":1}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			b := mockapi.NewBackend()
			b.Seed(users, reviews)
			b.SetLatency(latency)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(cmd.Context(), a.logger, ln, mockapi.NewRouter(b, a.logger))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVar(&users, "users", 20, "number of seeded users")
	cmd.Flags().IntVar(&reviews, "reviews", 100, "number of seeded reviews")
	cmd.Flags().DurationVar(&latency, "latency", 0, "delay added to every intent call")
	cmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode")
	return cmd
}

// serve runs handler on ln until ctx ends, then drains for up to 5 seconds.
func serve(ctx context.Context, logger *slog.Logger, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mock api listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down mock api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
