// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

/*
Package supervisor provides process supervision for Catalogmirror using suture v4.

In serve mode every long-running component runs under a two-layer tree:

	RootSupervisor ("catalogmirror")
	├── JobsSupervisor ("jobs-layer")
	│   └── SchedulerService (full sync, recently-added refresh, backfill)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (ops endpoint: health, metrics, status, triggers)

A scheduler crash restarts the scheduler only; the ops endpoint keeps serving
/health and the last recorded results while it comes back.

Supervisor events are logged through sutureslog, with the slog handler
bridged to the zerolog logger from internal/logging.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{})
	tree.AddJobsService(services.NewSchedulerService(manager, schedulerCfg))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)

See the services subpackage for the individual wrappers.
*/
package supervisor
