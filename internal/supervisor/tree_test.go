// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/catalogmirror/internal/logging"
)

// countingService runs until canceled, optionally failing its first runs.
type countingService struct {
	name     string
	starts   atomic.Int32
	failures int32
}

func (s *countingService) Serve(ctx context.Context) error {
	if n := s.starts.Add(1); n <= s.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func TestNewSupervisorTree_AppliesDefaults(t *testing.T) {
	tree, err := NewSupervisorTree(logging.NewSlogLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults %+v", tree.config, DefaultTreeConfig())
	}
}

func TestSupervisorTree_StartsBothLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(logging.NewSlogLogger(), TreeConfig{ShutdownTimeout: time.Second})

	jobs := &countingService{name: "jobs"}
	api := &countingService{name: "api"}
	tree.AddJobsService(jobs)
	tree.AddAPIService(api)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errCh := tree.ServeBackground(ctx)
	time.Sleep(100 * time.Millisecond)

	if jobs.starts.Load() < 1 {
		t.Error("jobs service was not started")
	}
	if api.starts.Load() < 1 {
		t.Error("api service was not started")
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("tree did not shut down in time")
	}
}

func TestSupervisorTree_RestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(logging.NewSlogLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := &countingService{name: "failing", failures: 2}
	stable := &countingService{name: "stable"}
	tree.AddJobsService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	errCh := tree.ServeBackground(ctx)
	time.Sleep(200 * time.Millisecond)

	if got := failing.starts.Load(); got < 3 {
		t.Errorf("expected at least 3 starts for failing service, got %d", got)
	}
	if got := stable.starts.Load(); got != 1 {
		t.Errorf("stable service restarted: %d starts", got)
	}
	<-errCh
}
