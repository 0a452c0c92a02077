// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/archivarr/pkg/medianame"
)

func TestSum(t *testing.T) {
	t.Parallel()

	// sha1("foo")
	assert.Equal(t, "0beec7b5ea3f0fdbc95d0dd47f3c5bc275da8a33", Sum("foo"))
	assert.Len(t, Sum(""), 40)
}

func TestMediaKeyID(t *testing.T) {
	t.Parallel()

	tv := MediaKey{Type: medianame.MediaTypeTV, Title: "Foo"}
	assert.Equal(t, Sum("foo"), tv.ID())
	assert.Equal(t, tv.ID(), MediaKey{Type: medianame.MediaTypeTV, Title: "FOO", Year: 1999}.ID(),
		"tv ids ignore case and year")

	movie := MediaKey{Type: medianame.MediaTypeMovie, Title: "Inception", Year: 2010}
	assert.Equal(t, Sum("inception2010"), movie.ID())

	noYear := MediaKey{Type: medianame.MediaTypeMovie, Title: "Inception"}
	assert.Equal(t, Sum("inception"), noYear.ID())
	assert.NotEqual(t, movie.ID(), noYear.ID())
}

func TestDeriveIsDeterministic(t *testing.T) {
	t.Parallel()

	path := "/tvshows/Foo/Season 1/Foo - S01E02 - Bar.mkv"
	d := medianame.Parse(filepath.Base(path), path)

	a := Derive(d, path)
	b := Derive(d, path)
	assert.Equal(t, a, b)

	assert.Equal(t, Sum("foo"), a.MediaID)
	assert.Equal(t, Sum(a.MediaID+"-S1"), a.SeasonID)
	assert.Equal(t, Sum(a.SeasonID+"-E2"), a.EpisodeID)
	assert.Equal(t, FileID(path), a.FileID)
}

func TestDeriveMovieHasNoSeason(t *testing.T) {
	t.Parallel()

	path := "/movies/Inception (2010) 1080p.mkv"
	set := Derive(medianame.Parse(filepath.Base(path), path), path)

	assert.Equal(t, Sum("inception2010"), set.MediaID)
	assert.Empty(t, set.SeasonID)
	assert.Empty(t, set.EpisodeID)
}

func TestDistinctTitlesDoNotCollide(t *testing.T) {
	t.Parallel()

	titles := []string{"Foo", "Bar", "Foo Bar", "Foobar", "The Office", "Office"}
	seen := make(map[string]string)
	for _, title := range titles {
		for _, mt := range []medianame.MediaType{medianame.MediaTypeTV, medianame.MediaTypeMovie} {
			id := MediaKey{Type: mt, Title: title, Year: 2001}.ID()
			prev, dup := seen[id]
			require.False(t, dup, "%s/%s collides with %s", mt, title, prev)
			seen[id] = string(mt) + "/" + title
		}
	}
}

func TestFileIDUsesAbsolutePath(t *testing.T) {
	t.Parallel()

	abs, err := filepath.Abs("a/b.mkv")
	require.NoError(t, err)
	assert.Equal(t, Sum(abs), FileID("a/b.mkv"))
	assert.Equal(t, FileID(abs), FileID("a/./b.mkv"))
}
