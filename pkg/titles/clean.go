// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package titles turns scene-style release names into the search titles
// sent to metadata providers.
package titles

import (
	"regexp"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/moistari/rls"
)

var (
	// markerPattern only holds tokens that never occur as ordinary title words.
	markerPattern = regexp.MustCompile(`(?i)\b(480p|576p|720p|1080p|2160p|4320p|bluray|blu-ray|bdrip|brrip|web-dl|webdl|webrip|hdtv|hdrip|dvdrip|remux|x264|x265|h\.?264|h\.?265|hevc|xvid|divx|10bit)\b`)
	// trailingTag holds edition and quality words that only count as tags
	// when they sit between the title and the first marker.
	trailingTag = regexp.MustCompile(`(?i)\s(4k|uhd|hdr10\+?|hdr|dv|proper|repack|extended|unrated|remastered|limited|internal)$`)
	bracketed   = regexp.MustCompile(`[\[{][^\]}]*[\]}]`)
	separators  = regexp.MustCompile(`[._\s]+`)
)

// Cleaner memoizes Clean results. The zero value is not usable; use New.
type Cleaner struct {
	cache *ttlcache.Cache[string, string]
}

func New() *Cleaner {
	return &Cleaner{
		cache: ttlcache.New(ttlcache.Options[string, string]{}.SetDefaultTTL(30 * time.Minute)),
	}
}

// Clean returns raw with rip tags, bracketed tags and a trailing release
// group removed. The result is never empty when raw is not blank.
func (c *Cleaner) Clean(raw string) string {
	if cached, ok := c.cache.Get(raw); ok {
		return cached
	}

	cleaned := clean(raw)
	c.cache.Set(raw, cleaned, ttlcache.DefaultTTL)
	return cleaned
}

var defaultCleaner = New()

// Clean uses the package level cache.
func Clean(raw string) string {
	return defaultCleaner.Clean(raw)
}

func clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// words like "web" or "extended" are only tags inside a release name
	if !markerPattern.MatchString(raw) {
		return collapse(raw)
	}

	// rls only knows where the title ends when it sees release markers
	release := rls.ParseString(raw)
	if hasReleaseMarkers(&release) {
		if title := collapse(release.Title); title != "" {
			return title
		}
	}

	return stripTags(raw)
}

func hasReleaseMarkers(r *rls.Release) bool {
	return r.Resolution != "" || r.Source != "" || len(r.Codec) > 0 || len(r.HDR) > 0 || len(r.Audio) > 0
}

// stripTags keeps everything before the first marker, minus bracketed tags
// and trailing edition words.
func stripTags(raw string) string {
	if !markerPattern.MatchString(raw) {
		return collapse(raw)
	}

	s := bracketed.ReplaceAllString(raw, " ")
	s = separators.ReplaceAllString(s, " ")
	if loc := markerPattern.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = collapse(s)

	for {
		trimmed := collapse(trailingTag.ReplaceAllString(s, ""))
		if trimmed == s {
			break
		}
		s = trimmed
	}

	if s == "" {
		return collapse(raw)
	}
	return s
}

func collapse(s string) string {
	s = separators.ReplaceAllString(s, " ")
	return strings.Trim(s, " -")
}
