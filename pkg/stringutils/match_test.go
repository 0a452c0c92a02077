// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeForMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"Shōgun", "shogun"},
		{"Amélie", "amelie"},
		{"Bob's Burgers", "bobs burgers"},
		{"Bob’s Burgers", "bobs burgers"},
		{"CSI: Miami", "csi miami"},
		{"Spider-Man", "spider man"},
		{"His & Hers", "his and hers"},
		{"  The.Office  ", "the office"},
		{"Ærø", "aero"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormalizeForMatching(tt.input))
		})
	}
}

func TestEqualFold(t *testing.T) {
	t.Parallel()

	assert.True(t, EqualFold("Spider-Man", "spider man"))
	assert.True(t, EqualFold("Amélie", "AMELIE"))
	assert.False(t, EqualFold("Alien", "Aliens"))
}

func TestNormalizerCachesTransform(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	n := NewNormalizer(time.Minute, func(s string) string {
		calls.Add(1)
		return strings.ToUpper(s)
	})

	assert.Equal(t, "FOO", n.Normalize("foo"))
	assert.Equal(t, "FOO", n.Normalize("foo"))
	assert.Equal(t, int32(1), calls.Load())

	n.Clear("foo")
	assert.Equal(t, "FOO", n.Normalize("foo"))
	assert.Equal(t, int32(2), calls.Load())
}
