// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tmdb

import (
	"strconv"
	"strings"
)

// genreNames maps TMDB genre ids to names, movie and tv combined.
var genreNames = map[int]string{
	28: "Action", 12: "Adventure", 16: "Animation", 35: "Comedy", 80: "Crime",
	99: "Documentary", 18: "Drama", 10751: "Family", 14: "Fantasy", 36: "History",
	27: "Horror", 10402: "Music", 9648: "Mystery", 10749: "Romance",
	878: "Science Fiction", 10770: "TV Movie", 53: "Thriller", 10752: "War", 37: "Western",
	10759: "Action & Adventure", 10762: "Kids", 10763: "News", 10764: "Reality",
	10765: "Sci-Fi & Fantasy", 10766: "Soap", 10767: "Talk", 10768: "War & Politics",
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Result is a search hit or a details payload. Movies carry title and
// release_date, tv carries name and first_air_date.
type Result struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
	GenreIDs     []int   `json:"genre_ids"`
	Genres       []Genre `json:"genres"`
	ImdbID       string  `json:"imdb_id"`

	imageBaseURL string
}

func (r Result) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

func (r Result) Year() int {
	date := r.ReleaseDate
	if date == "" {
		date = r.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

func (r Result) PosterURL() string {
	return r.imageURL(r.PosterPath)
}

func (r Result) BackdropURL() string {
	return r.imageURL(r.BackdropPath)
}

func (r Result) imageURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := r.imageBaseURL
	if base == "" {
		base = DefaultImageBaseURL
	}
	return base + "/" + strings.TrimPrefix(path, "/")
}

// GenreNames prefers the named genres of a details payload and falls back
// to mapping search result genre ids.
func (r Result) GenreNames() []string {
	names := make([]string, 0, len(r.Genres)+len(r.GenreIDs))
	for _, g := range r.Genres {
		if g.Name != "" {
			names = append(names, g.Name)
		}
	}
	if len(names) > 0 {
		return names
	}
	for _, id := range r.GenreIDs {
		if name, ok := genreNames[id]; ok {
			names = append(names, name)
		}
	}
	return names
}
