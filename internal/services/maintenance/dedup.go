// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package maintenance holds one-off repair jobs for the archive database.
package maintenance

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/archivarr/internal/models"
)

// DriveMerger is the subset of models.DriveStore used by DedupDrives.
type DriveMerger interface {
	DuplicateGroups(ctx context.Context) ([]models.DriveDuplicateGroup, error)
	Merge(ctx context.Context, keepID int64, removeIDs []int64) error
}

// DedupResult describes one merged group of drives.
type DedupResult struct {
	Path    string  `json:"path"`
	KeptID  int64   `json:"keptId"`
	Removed []int64 `json:"removed"`
}

// DedupDrives merges drives whose paths differ only by case or a trailing
// slash into the row with the lowest id.
func DedupDrives(ctx context.Context, store DriveMerger) ([]DedupResult, error) {
	groups, err := store.DuplicateGroups(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "find duplicate drives")
	}

	out := make([]DedupResult, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := store.Merge(ctx, g.KeepID, g.RemoveIDs); err != nil {
			return out, errors.Wrapf(err, "merge drives into %d", g.KeepID)
		}
		log.Info().Str("path", g.Key).Int64("kept", g.KeepID).Ints64("removed", g.RemoveIDs).Msg("maintenance: merged duplicate drives")
		out = append(out, DedupResult{Path: g.Key, KeptID: g.KeepID, Removed: g.RemoveIDs})
	}
	return out, nil
}
