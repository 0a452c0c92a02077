// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pathcmp compares archive paths the same way regardless of the
// separator style or a trailing slash, so drive roots configured as
// "/mnt/a/" and "/mnt/a" are treated as one.
package pathcmp

import (
	"path"
	"strings"
)

func isDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// NormalizePath converts backslashes to slashes, cleans the path and drops a
// trailing slash. Windows drive roots stay as "C:/".
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")

	if isDriveLetter(p) {
		drive, rest := p[:2], p[2:]
		if rest == "" {
			return drive
		}
		rest = path.Clean(rest)
		if rest == "/" || rest == "." {
			return drive + "/"
		}
		return drive + rest
	}

	p = path.Clean(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// NormalizePathFold is NormalizePath lowercased. It is the grouping key for
// drive rows that point at the same root.
func NormalizePathFold(p string) string {
	return strings.ToLower(NormalizePath(p))
}

// Within reports whether p is root or lies below it.
func Within(root, p string) bool {
	root, p = NormalizePath(root), NormalizePath(p)
	if root == "" || p == "" {
		return false
	}
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(p, prefix)
}
