// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package enrichment

import (
	"math"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/autobrr/archivarr/pkg/arr"
	"github.com/autobrr/archivarr/pkg/stringutils"
	"github.com/autobrr/archivarr/pkg/tmdb"
)

type candidate struct {
	title string
	year  int
	index int
}

// rankCandidates orders candidates by how well their title matches query:
// exact normalized matches first, then fuzzy matches by edit distance, then
// everything else in provider order. A matching year breaks ties.
func rankCandidates(cands []candidate, query string, year int) []candidate {
	q := stringutils.NormalizeForMatching(query)

	scores := make(map[int]int, len(cands))
	for _, c := range cands {
		t := stringutils.NormalizeForMatching(c.title)
		base := math.MaxInt32
		if t == q {
			base = 0
		} else if d := fuzzy.RankMatchNormalizedFold(q, t); d >= 0 {
			base = 1 + d
		} else if d := fuzzy.RankMatchNormalizedFold(t, q); d >= 0 {
			base = 1 + d
		}

		s := base * 2
		if year > 0 && c.year != year {
			s++
		}
		scores[c.index] = s
	}

	ranked := append([]candidate(nil), cands...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].index] < scores[ranked[j].index]
	})
	return ranked
}

func bestItem(items []arr.Item, query string, year int) (arr.Item, bool) {
	cands := make([]candidate, 0, len(items))
	for i, item := range items {
		if item.Title == "" {
			continue
		}
		cands = append(cands, candidate{title: item.Title, year: item.ReleaseYear(), index: i})
	}
	if len(cands) == 0 {
		return arr.Item{}, false
	}
	return items[rankCandidates(cands, query, year)[0].index], true
}

func bestResult(results []tmdb.Result, query string, year int) (tmdb.Result, bool) {
	cands := make([]candidate, 0, len(results))
	for i, r := range results {
		if r.DisplayTitle() == "" {
			continue
		}
		cands = append(cands, candidate{title: r.DisplayTitle(), year: r.Year(), index: i})
	}
	if len(cands) == 0 {
		return tmdb.Result{}, false
	}
	return results[rankCandidates(cands, query, year)[0].index], true
}
