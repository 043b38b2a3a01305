// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tomtom215/catalogmirror/internal/config"
	"github.com/tomtom215/catalogmirror/internal/database"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/metrics"
	"github.com/tomtom215/catalogmirror/internal/sync"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	db      *database.DB
	manager *sync.Manager
}

// bootstrap loads configuration, initializes logging and opens the
// database. The caller must call close.
func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	servers := cfg.MediaServers()
	if len(servers) == 0 {
		return nil, fmt.Errorf("no media servers configured")
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Int("servers", len(servers)).
		Msg("Configuration loaded")

	return &app{
		cfg:     cfg,
		db:      db,
		manager: sync.NewManager(cfg, db, nil),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing database")
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
