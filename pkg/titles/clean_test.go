// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package titles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"Foo", "Foo"},
		{"Spider-Man", "Spider-Man"},
		{"Inception 1080p BluRay x264-GROUP", "Inception"},
		{"The.Matrix.2160p.WEB-DL.HEVC", "The Matrix"},
		{"Heat [1080p] {remux}", "Heat"},
		{"random_clip", "random clip"},
		{"1080p", "1080p"},
		{"Charlotte's Web", "Charlotte's Web"},
		{"Web of Lies", "Web of Lies"},
		{"Extended Family", "Extended Family"},
		{"Proper Manners", "Proper Manners"},
		{"Charlotte's.Web.1080p.WEB-DL.x264-GROUP", "Charlotte's Web"},
		{"Aliens.EXTENDED.PROPER.2160p.UHD.BluRay", "Aliens"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, stripTags(tt.input))
		})
	}
}

func TestCleanLeavesPlainTitlesAlone(t *testing.T) {
	t.Parallel()

	c := New()
	for _, title := range []string{"Foo", "The Office", "Bob's Burgers", "Charlotte's Web", "Web of Lies", "Extended Family", "Unrated Stories", "HDR Life"} {
		assert.Equal(t, title, c.Clean(title))
	}
	assert.Empty(t, c.Clean("   "))
}

func TestCleanRemovesReleaseMarkers(t *testing.T) {
	t.Parallel()

	c := New()
	got := c.Clean("Inception 1080p BluRay x264-GROUP")

	assert.NotEmpty(t, got)
	lower := strings.ToLower(got)
	assert.Contains(t, lower, "inception")
	assert.NotContains(t, lower, "1080p")
	assert.NotContains(t, lower, "x264")
	assert.NotContains(t, lower, "group")
}

func TestCleanIsMemoized(t *testing.T) {
	t.Parallel()

	c := New()
	first := c.Clean("The.Matrix.2160p.WEB-DL.HEVC")

	cached, ok := c.cache.Get("The.Matrix.2160p.WEB-DL.HEVC")
	assert.True(t, ok)
	assert.Equal(t, first, cached)
	assert.Equal(t, first, c.Clean("The.Matrix.2160p.WEB-DL.HEVC"))
}
