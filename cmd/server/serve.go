// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/catalogmirror/internal/api"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/supervisor"
	"github.com/tomtom215/catalogmirror/internal/supervisor/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the ops endpoint until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		return serve(ctx, a)
	},
}

func serve(ctx context.Context, a *app) error {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.manager.Ping(pingCtx); err != nil {
		logging.Warn().Err(err).Msg("Media server not reachable at startup (will retry on schedule)")
	}
	cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  a.cfg.Sync.PageTimeout + 10*time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	scheduler, err := services.NewSchedulerService(a.manager, services.SchedulerConfigFrom(a.cfg))
	if err != nil {
		return err
	}
	tree.AddJobsService(scheduler)

	if a.cfg.Server.Enabled {
		addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
		handler := api.NewHandler(ctx, a.manager, a.db, version).WithCORS(a.cfg.Server.CORSOrigins)
		server := &http.Server{
			Addr:              addr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       a.cfg.Server.Timeout,
			WriteTimeout:      a.cfg.Server.Timeout,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, addr, 10*time.Second))
	}

	logging.Info().Bool("ops_endpoint", a.cfg.Server.Enabled).Msg("Starting catalogmirror")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree stopped: %w", err)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}
