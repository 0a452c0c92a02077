// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// RedactedStr replaces api keys in API responses and command output.
const RedactedStr = "<redacted>"

func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return RedactedStr
}

// IsRedactedString reports whether s is the redaction placeholder, so a
// client echoing it back does not overwrite the stored secret.
func IsRedactedString(s string) bool {
	return s == RedactedStr
}
