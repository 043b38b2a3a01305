// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/catalogmirror/internal/api"
	"github.com/tomtom215/catalogmirror/internal/logging"
	"github.com/tomtom215/catalogmirror/internal/models"
)

var (
	syncServer     string
	recentLimit    int
	backfillServer string
	backfillFrom   string
	backfillTo     string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full catalog pass",
	Long:  "Run one full catalog pass for every configured server, or only --server.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		ctx = logging.ContextWithNewCorrelationID(ctx)

		var results []*models.SyncResult
		if syncServer != "" {
			result, err := a.manager.SyncServer(ctx, syncServer)
			if err != nil {
				return err
			}
			results = append(results, result)
		} else {
			results = a.manager.SyncAll(ctx)
		}
		return printResults(cmd.OutOrStdout(), results, syncFailed(results))
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Refresh the most recently added items of every library",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext()
		defer stop()
		ctx = logging.ContextWithNewCorrelationID(ctx)

		results := a.manager.SyncRecentlyAdded(ctx, recentLimit)
		return printResults(cmd.OutOrStdout(), results, syncFailed(results))
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Reconstruct historical playback sessions from the activity log",
	Long: `Reconstruct historical playback sessions for one server over [from, to).
Bounds accept RFC 3339 timestamps or YYYY-MM-DD dates and default to the
configured backfill.days_back window ending now.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		from, to := a.manager.BackfillWindow()
		if backfillFrom != "" {
			if from, err = api.ParseTimeParam(backfillFrom); err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
		}
		if backfillTo != "" {
			if to, err = api.ParseTimeParam(backfillTo); err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
		}

		ctx, stop := signalContext()
		defer stop()
		ctx = logging.ContextWithNewCorrelationID(ctx)

		result, err := a.manager.Backfill(ctx, backfillServer, from, to)
		if err != nil && result == nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), result, result.Status == models.SyncStatusError)
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncServer, "server", "", "Only sync this server ID")
	recentCmd.Flags().IntVar(&recentLimit, "limit", 0, "Items per library (default: sync.recent_limit)")
	backfillCmd.Flags().StringVar(&backfillServer, "server", "", "Server ID to backfill")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Range start (RFC 3339 or YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Range end, exclusive (RFC 3339 or YYYY-MM-DD)")
	_ = backfillCmd.MarkFlagRequired("server")
}

func syncFailed(results []*models.SyncResult) bool {
	for _, r := range results {
		if r.Status == models.SyncStatusError {
			return true
		}
	}
	return false
}

// printResults writes v as indented JSON. failed turns the exit status
// non-zero after the results are printed.
func printResults(w io.Writer, v interface{}, failed bool) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return err
	}
	if failed {
		return fmt.Errorf("one or more runs failed")
	}
	return nil
}
