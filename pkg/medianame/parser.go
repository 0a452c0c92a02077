// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package medianame classifies video files as movies or TV episodes from
// their filename and the folder conventions of the path they live in.
//
// Parse is total: every input yields a Descriptor. Files that match no
// pattern become movies titled after the bare filename.
package medianame

import (
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

func (t MediaType) String() string { return string(t) }

// ParseMediaType accepts the stored forms plus the PVR spellings.
func ParseMediaType(s string) (MediaType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies", "film":
		return MediaTypeMovie, true
	case "tv", "series", "show":
		return MediaTypeTV, true
	default:
		return "", false
	}
}

// Descriptor is the structured view of a filename. Season, Episode and
// EpisodeTitle are only set for TV; Year and Quality only for movies, and
// zero/empty means unknown.
type Descriptor struct {
	Type         MediaType
	Title        string
	Season       int
	Episode      int
	EpisodeTitle string
	Year         int
	Quality      string
}

func (d Descriptor) IsTV() bool { return d.Type == MediaTypeTV }

var videoExtensions = map[string]struct{}{
	".mkv": {},
	".mp4": {},
	".avi": {},
	".mov": {},
	".m4v": {},
}

// IsVideo reports whether the file extension is a recognized video container.
func IsVideo(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

var (
	tvPattern = regexp.MustCompile(
		`(?i)^(?P<title>.+?)[ ._-]+S(?P<season>\d{1,2})E(?P<episode>\d{1,2})(?:[ ._-]+(?P<ep_title>.*?))?(?:\.\w+)?$`)
	tvPatternDotted = regexp.MustCompile(
		`(?i)^(?P<title>.+?)\.S(?P<season>\d{2})E(?P<episode>\d{2})(?:\.(?P<ep_title>.+?))?\.`)
	moviePattern = regexp.MustCompile(
		`(?i)^(?P<title>.+?) \((?P<year>\d{4})\)(?: (?P<quality>.+))?$`)

	seasonFolderPattern = regexp.MustCompile(`/season\s*\d+`)
	spaceRun            = regexp.MustCompile(`\s+`)
)

// Parse classifies filename, using fullPath for folder overrides: a
// "tvshows" segment or a "season N" folder forces TV patterns, a "movies"
// segment forces the movie pattern.
func Parse(filename, fullPath string) Descriptor {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	lowerPath := strings.ToLower(filepath.ToSlash(fullPath))

	switch {
	case strings.Contains(lowerPath, "/tvshows/") || seasonFolderPattern.MatchString(lowerPath):
		if d, ok := matchTV(filename); ok {
			return d
		}
	case strings.Contains(lowerPath, "/movies/"):
		if d, ok := matchMovie(name); ok {
			return d
		}
	default:
		if d, ok := matchTV(filename); ok {
			return d
		}
		if d, ok := matchMovie(name); ok {
			return d
		}
	}

	return Descriptor{Type: MediaTypeMovie, Title: name}
}

func matchTV(filename string) (Descriptor, bool) {
	groups := namedGroups(tvPattern, filename)
	if groups == nil {
		groups = namedGroups(tvPatternDotted, filename)
	}
	if groups == nil {
		return Descriptor{}, false
	}

	season, _ := strconv.Atoi(groups["season"])
	episode, _ := strconv.Atoi(groups["episode"])

	// "Show.S01E02.mkv" lets the optional episode title swallow the extension
	epTitle := groups["ep_title"]
	if strings.EqualFold(epTitle, strings.TrimPrefix(filepath.Ext(filename), ".")) {
		epTitle = ""
	}

	return Descriptor{
		Type:         MediaTypeTV,
		Title:        cleanSeparators(groups["title"]),
		Season:       season,
		Episode:      episode,
		EpisodeTitle: cleanSeparators(epTitle),
	}, true
}

func matchMovie(name string) (Descriptor, bool) {
	groups := namedGroups(moviePattern, name)
	if groups == nil {
		return Descriptor{}, false
	}

	year, _ := strconv.Atoi(groups["year"])

	return Descriptor{
		Type:    MediaTypeMovie,
		Title:   strings.TrimSpace(groups["title"]),
		Year:    year,
		Quality: strings.TrimSpace(groups["quality"]),
	}, true
}

func namedGroups(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}

	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = m[i]
		}
	}
	return out
}

// cleanSeparators turns dots and underscores into spaces and trims
// separator runs at the edges. Hyphens inside words are kept.
func cleanSeparators(s string) string {
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.Trim(s, " -")
}

// SeriesFolder returns the series and season folders for an episode file
// laid out as <series>/<season>/<file>.
func SeriesFolder(fullPath string) (series, season string) {
	p := filepath.ToSlash(fullPath)
	season = path.Dir(p)
	series = path.Dir(season)
	return filepath.FromSlash(series), filepath.FromSlash(season)
}
