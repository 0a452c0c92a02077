// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var sectionHeader = regexp.MustCompile(`^\s*\[`)

// updateLogSettingsInTOML rewrites the log keys in place, uncommenting them
// when needed. Keys that do not exist yet are inserted before the first
// table so they stay top level.
func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	values := []struct {
		key   string
		value string
	}{
		{"logLevel", strconv.Quote(level)},
		{"logPath", strconv.Quote(path)},
		{"logMaxSize", strconv.Itoa(maxSize)},
		{"logMaxBackups", strconv.Itoa(maxBackups)},
	}

	lines := strings.Split(content, "\n")
	firstSection := len(lines)
	for i, line := range lines {
		if sectionHeader.MatchString(line) {
			firstSection = i
			break
		}
	}

	var missing []string
	for _, kv := range values {
		pattern := regexp.MustCompile(`^\s*#?\s*` + regexp.QuoteMeta(kv.key) + `\s*=`)
		replacement := fmt.Sprintf("%s = %s", kv.key, kv.value)

		found := false
		for i := 0; i < firstSection; i++ {
			if pattern.MatchString(lines[i]) {
				lines[i] = replacement
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, replacement)
		}
	}

	if len(missing) > 0 {
		tail := append([]string{}, lines[firstSection:]...)
		lines = append(lines[:firstSection], missing...)
		if len(tail) > 0 {
			lines = append(lines, "")
			lines = append(lines, tail...)
		}
	}

	return strings.Join(lines, "\n")
}
