// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Item is the subset of a Sonarr series or Radarr movie resource the
// archive uses. Raw keeps the full payload for library listings.
type Item struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	SortTitle    string   `json:"sortTitle"`
	TitleSlug    string   `json:"titleSlug"`
	Year         int      `json:"year"`
	Overview     string   `json:"overview"`
	Genres       []string `json:"genres"`
	Ratings      Ratings  `json:"ratings"`
	RemotePoster string   `json:"remotePoster"`
	Images       []Image  `json:"images"`
	TmdbID       int      `json:"tmdbId"`
	TvdbID       int      `json:"tvdbId"`
	ImdbID       string   `json:"imdbId"`
	Monitored    bool     `json:"monitored"`
	Added        string   `json:"added"`
	FirstAired   string   `json:"firstAired"`
	InCinemas    string   `json:"inCinemas"`

	Raw json.RawMessage `json:"-"`
}

type Image struct {
	CoverType string `json:"coverType"`
	URL       string `json:"url"`
	RemoteURL string `json:"remoteUrl"`
}

// ReleaseYear falls back to the first air or cinema date when the year is
// not set, as is common for lookup results of unreleased titles.
func (i Item) ReleaseYear() int {
	if i.Year > 0 {
		return i.Year
	}
	for _, date := range []string{i.FirstAired, i.InCinemas} {
		if len(date) >= 4 {
			if y, err := strconv.Atoi(date[:4]); err == nil {
				return y
			}
		}
	}
	return 0
}

// Poster prefers remotePoster, then the remote url of the poster image,
// then its local url.
func (i Item) Poster() string {
	return i.image("poster", i.RemotePoster)
}

func (i Item) Backdrop() string {
	return i.image("fanart", "")
}

func (i Item) image(coverType, preferred string) string {
	if preferred != "" {
		return preferred
	}
	for _, img := range i.Images {
		if !strings.EqualFold(img.CoverType, coverType) {
			continue
		}
		if img.RemoteURL != "" {
			return img.RemoteURL
		}
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}

// Ratings accepts both the flat Sonarr shape {"value": 8.1} and the
// per-source Radarr shape {"tmdb": {"value": 8.1}, "imdb": {...}}.
type Ratings struct {
	Value float64
	Votes int
}

type ratingValue struct {
	Value float64 `json:"value"`
	Votes int     `json:"votes"`
}

func (r *Ratings) UnmarshalJSON(data []byte) error {
	var flat struct {
		Value *float64     `json:"value"`
		Votes int          `json:"votes"`
		Tmdb  *ratingValue `json:"tmdb"`
		Imdb  *ratingValue `json:"imdb"`
	}
	if err := json.Unmarshal(data, &flat); err != nil {
		// unknown shapes are treated as unrated
		return nil
	}

	switch {
	case flat.Value != nil:
		r.Value, r.Votes = *flat.Value, flat.Votes
	case flat.Tmdb != nil:
		r.Value, r.Votes = flat.Tmdb.Value, flat.Tmdb.Votes
	case flat.Imdb != nil:
		r.Value, r.Votes = flat.Imdb.Value, flat.Imdb.Votes
	}
	return nil
}

type SystemStatus struct {
	AppName string `json:"appName"`
	Version string `json:"version"`
}
