// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package config

import (
	"fmt"

	"github.com/tomtom215/catalogmirror/internal/validation"
)

// Validate checks struct-tag rules and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	// Servers are validated separately: the disabled shorthand has no URL.
	check := struct {
		Database DatabaseConfig
		Sync     SyncConfig
		Backfill BackfillConfig
		Server   ServerConfig
		Logging  LoggingConfig
	}{c.Database, c.Sync, c.Backfill, c.Server, c.Logging}
	if verr := validation.ValidateStruct(&check); verr != nil {
		return verr
	}

	if err := c.validateServers(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if c.Backfill.Enabled && c.Backfill.Schedule == "" {
		return fmt.Errorf("backfill.schedule is required when backfill.enabled=true")
	}
	return nil
}

func (c *Config) validateServers() error {
	seen := make(map[string]bool)
	for _, s := range c.MediaServers() {
		if verr := validation.ValidateStruct(&s); verr != nil {
			return fmt.Errorf("server %q: %w", s.ServerID, verr)
		}
		if err := validateHTTPURL(s.URL, "url"); err != nil {
			return fmt.Errorf("server %q: %w", s.ServerID, err)
		}
		if seen[s.ServerID] {
			return fmt.Errorf("duplicate server_id %q: every server needs a unique server_id", s.ServerID)
		}
		seen[s.ServerID] = true
	}
	return nil
}

func (c *Config) validateTimings() error {
	if c.Sync.PageDelay < 0 {
		return fmt.Errorf("sync.page_delay must not be negative")
	}
	if c.Sync.PageTimeout <= 0 {
		return fmt.Errorf("sync.page_timeout must be positive")
	}
	if c.Sync.ItemTimeout <= 0 {
		return fmt.Errorf("sync.item_timeout must be positive")
	}
	if c.Backfill.ActivityRequestDelay < 0 {
		return fmt.Errorf("backfill.activity_request_delay must not be negative")
	}
	return nil
}
