// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

// Package main is the entry point for catalogmirror.
//
// catalogmirror keeps a local DuckDB mirror of the catalogs of one or more
// Jellyfin/Emby servers and reconstructs historical playback sessions from
// their activity logs.
//
// # Commands
//
//	catalogmirror serve                       scheduler plus ops endpoint
//	catalogmirror sync [--server ID]          one full catalog pass
//	catalogmirror recent [--limit N]          one recently-added pass
//	catalogmirror backfill --server ID [--from DATE] [--to DATE]
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (JELLYFIN_URL, SYNC_SCHEDULE, ...)
//   - Config file (CONFIG_PATH or ./config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the running command. A catalog pass stops at
// page granularity; the serve command drains the ops endpoint and waits for
// running jobs before closing the database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time via -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "catalogmirror",
	Short: "Mirror media server catalogs and backfill playback history",
	Long: `catalogmirror mirrors the library catalogs of Jellyfin and Emby servers
into DuckDB, keeps stable identities across server-side re-imports, and
reconstructs historical playback sessions from server activity logs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(backfillCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
