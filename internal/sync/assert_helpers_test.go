// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package sync

import (
	"errors"
	"testing"
)

// Test assertion helpers with "check" prefix.
// Using t.Helper() ensures error messages point to the calling line.

// checkNoError fails the test if err is not nil
func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// checkErrorIs fails the test unless errors.Is(err, target)
func checkErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}

// checkStringEqual checks that got equals want, failing if not
func checkStringEqual(t *testing.T, fieldName, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %q, got %q", fieldName, want, got)
	}
}

// checkIntEqual checks that got equals want
func checkIntEqual(t *testing.T, fieldName string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, got)
	}
}

// checkIntPtrEqual checks that ptr is not nil and equals want
func checkIntPtrEqual(t *testing.T, fieldName string, ptr *int, want int) {
	t.Helper()
	if ptr == nil {
		t.Errorf("%s should not be nil, expected %d", fieldName, want)
		return
	}
	if *ptr != want {
		t.Errorf("%s: expected %d, got %d", fieldName, want, *ptr)
	}
}

// checkTrue checks that condition is true
func checkTrue(t *testing.T, description string, condition bool) {
	t.Helper()
	if !condition {
		t.Errorf("expected %s to be true", description)
	}
}

// checkFalse checks that condition is false
func checkFalse(t *testing.T, description string, condition bool) {
	t.Helper()
	if condition {
		t.Errorf("expected %s to be false", description)
	}
}

// checkStatus checks a result status
func checkStatus[S ~string](t *testing.T, got, want S) {
	t.Helper()
	if got != want {
		t.Errorf("status: expected %q, got %q", want, got)
	}
}
