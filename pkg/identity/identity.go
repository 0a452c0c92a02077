// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package identity derives the stable content-addressed ids used as primary
// keys for media, seasons, episodes and files. All ids are lowercase sha1 hex.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/autobrr/archivarr/pkg/medianame"
)

// MediaKey is the tuple a media id is derived from. Year is 0 when unknown.
//
// TV ids ignore Year, so same-title series from different years share one
// row. This keeps ids stable with existing archives.
type MediaKey struct {
	Type  medianame.MediaType
	Title string
	Year  int
}

func KeyFor(d medianame.Descriptor) MediaKey {
	key := MediaKey{Type: d.Type, Title: d.Title}
	if d.Type == medianame.MediaTypeMovie {
		key.Year = d.Year
	}
	return key
}

// ID returns sha1(lower(title)) for TV and sha1(lower(title) + year) for
// movies, where a missing year contributes the empty string.
func (k MediaKey) ID() string {
	title := strings.ToLower(k.Title)
	if k.Type == medianame.MediaTypeTV {
		return Sum(title)
	}

	year := ""
	if k.Year > 0 {
		year = strconv.Itoa(k.Year)
	}
	return Sum(title + year)
}

func SeasonID(mediaID string, season int) string {
	return Sum(fmt.Sprintf("%s-S%d", mediaID, season))
}

func EpisodeID(seasonID string, episode int) string {
	return Sum(fmt.Sprintf("%s-E%d", seasonID, episode))
}

// FileID hashes the absolute, cleaned form of path.
func FileID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return Sum(abs)
}

// Set holds every id derived for one file. SeasonID and EpisodeID are empty
// for movies.
type Set struct {
	MediaID   string
	SeasonID  string
	EpisodeID string
	FileID    string
}

func Derive(d medianame.Descriptor, path string) Set {
	set := Set{
		MediaID: KeyFor(d).ID(),
		FileID:  FileID(path),
	}
	if d.IsTV() {
		set.SeasonID = SeasonID(set.MediaID, d.Season)
		set.EpisodeID = EpisodeID(set.SeasonID, d.Episode)
	}
	return set
}

func Sum(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
