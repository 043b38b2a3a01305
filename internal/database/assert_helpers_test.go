// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package database

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

// checkError fails the test if err is nil
func checkError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// checkErrorIs fails the test unless errors.Is(err, target)
func checkErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error %v, got %v", target, err)
	}
}

// checkStringEqual checks that got equals want
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

// checkBool checks that got equals want
func checkBool(t *testing.T, fieldName string, got, want bool) {
	t.Helper()
	if got != want {
		t.Errorf("%s: expected %v, got %v", fieldName, want, got)
	}
}

// checkSliceEmpty checks that a slice is empty
func checkSliceEmpty(t *testing.T, name string, length int) {
	t.Helper()
	if length != 0 {
		t.Errorf("expected empty %s, got %d items", name, length)
	}
}
