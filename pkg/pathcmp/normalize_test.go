// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pathcmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/mnt/archive/", "/mnt/archive"},
		{"/mnt//archive/./movies", "/mnt/archive/movies"},
		{"/", "/"},
		{`D:\Media\TV\`, "D:/Media/TV"},
		{"D:", "D:"},
		{`D:\`, "D:/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}
}

func TestNormalizePathFold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NormalizePathFold("/Mnt/Archive/"), NormalizePathFold("/mnt/archive"))
}

func TestWithin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		root string
		path string
		want bool
	}{
		{"same", "/mnt/a", "/mnt/a/", true},
		{"child", "/mnt/a", "/mnt/a/tvshows/Foo/x.mkv", true},
		{"sibling prefix", "/mnt/a", "/mnt/ab/x.mkv", false},
		{"outside", "/mnt/a", "/srv/x.mkv", false},
		{"filesystem root", "/", "/mnt/a", true},
		{"empty", "", "/mnt/a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Within(tt.root, tt.path))
		})
	}
}
