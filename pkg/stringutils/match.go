// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package stringutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	unicodeNormalizer  = NewNormalizer(defaultNormalizerTTL, foldUnicode)
	matchingNormalizer = NewNormalizer(defaultNormalizerTTL, normalized)
)

var letterFolds = strings.NewReplacer(
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"ß", "ss",
	"ð", "d", "Ð", "D",
	"þ", "th", "Þ", "TH",
)

var punctuation = strings.NewReplacer(
	"'", "", "’", "", "‘", "", "`", "",
	":", "", ",", "", "!", "", "?", "",
	"&", " and ",
	"-", " ", ".", " ", "_", " ",
)

func foldUnicode(s string) string {
	// NFKD does not decompose these letters
	s = letterFolds.Replace(s)

	// transform.Chain is not safe for concurrent use
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

func normalized(s string) string {
	s = unicodeNormalizer.Normalize(s)
	s = strings.ToLower(strings.TrimSpace(s))
	s = punctuation.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeUnicode removes diacritics and decomposes ligatures.
//   - "Amélie" → "Amelie"
//   - "Shōgun" → "Shogun"
func NormalizeUnicode(s string) string {
	return unicodeNormalizer.Normalize(s)
}

// NormalizeForMatching folds unicode, lowercases, drops apostrophes and
// colons, maps "&" to "and" and treats hyphens, dots and underscores as
// spaces.
//   - "Bob's Burgers" → "bobs burgers"
//   - "CSI: Miami" → "csi miami"
//   - "Spider-Man" → "spider man"
func NormalizeForMatching(s string) string {
	return matchingNormalizer.Normalize(s)
}

// EqualFold reports whether a and b are the same title after matching
// normalization.
func EqualFold(a, b string) bool {
	return NormalizeForMatching(a) == NormalizeForMatching(b)
}
