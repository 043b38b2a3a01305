// Catalogmirror - Media Server Catalog Mirror and Historical Session Backfill
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/catalogmirror

package backfill

import "strings"

// completionKeywords mark an event name as the end of a viewing.
// Matched case-insensitively as substrings.
var completionKeywords = []string{"stopped", "completed"}

// playbackTypePrefixes are activity types emitted for playback.
var playbackTypePrefixes = []string{"VideoPlayback", "AudioPlayback"}

// playbackNameKeywords identify playback lines when the type is not set.
var playbackNameKeywords = []string{"is playing", "playing", "playback", "stopped", "completed"}

// IsCompletionEvent reports whether a free-text event name signals that
// playback ended ("Playback Stopped", "alice completed Heat").
func IsCompletionEvent(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range completionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsPlaybackEvent reports whether an activity row describes playback.
// The type is authoritative when present; otherwise the name is inspected.
func IsPlaybackEvent(eventType, name string) bool {
	if eventType != "" {
		for _, p := range playbackTypePrefixes {
			if strings.HasPrefix(eventType, p) {
				return true
			}
		}
		return false
	}
	lower := strings.ToLower(name)
	for _, kw := range playbackNameKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
