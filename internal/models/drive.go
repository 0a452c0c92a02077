// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/archivarr/internal/dbinterface"
)

// Drive is a configured storage root.
type Drive struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Device    string    `json:"device,omitempty"`
	Brand     string    `json:"brand,omitempty"`
	Model     string    `json:"model,omitempty"`
	Serial    string    `json:"serial,omitempty"`
	TotalSize int64     `json:"totalSize"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DriveDuplicateGroup lists drives whose paths differ only in case or a
// trailing slash. KeepID is the lowest id of the group.
type DriveDuplicateGroup struct {
	Key       string  `json:"key"`
	KeepID    int64   `json:"keepId"`
	RemoveIDs []int64 `json:"removeIds"`
}

type DriveStore struct {
	db dbinterface.TxRunner
}

func NewDriveStore(db dbinterface.TxRunner) *DriveStore {
	return &DriveStore{db: db}
}

const driveColumns = `id, name, path, device, brand, model, serial, total_size, created_at, updated_at`

// Upsert inserts the drive or refreshes its descriptive fields when the
// path is already known, and returns the stored row.
func (s *DriveStore) Upsert(ctx context.Context, d *Drive) (*Drive, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drives (name, path, device, brand, model, serial, total_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			device = excluded.device,
			brand = excluded.brand,
			model = excluded.model,
			serial = excluded.serial,
			total_size = excluded.total_size,
			updated_at = CURRENT_TIMESTAMP
	`, d.Name, d.Path, nullString(d.Device), nullString(d.Brand), nullString(d.Model), nullString(d.Serial), d.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("upsert drive %s: %w", d.Path, err)
	}

	return s.GetByPath(ctx, d.Path)
}

func (s *DriveStore) GetByPath(ctx context.Context, path string) (*Drive, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+driveColumns+` FROM drives WHERE path = ?`, path)
	d, err := scanDrive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDriveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get drive %s: %w", path, err)
	}
	return d, nil
}

func (s *DriveStore) List(ctx context.Context) ([]Drive, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+driveColumns+` FROM drives ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	defer rows.Close()

	var drives []Drive
	for rows.Next() {
		d, err := scanDrive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan drive: %w", err)
		}
		drives = append(drives, *d)
	}
	return drives, rows.Err()
}

// DuplicateGroups groups drives by LOWER(RTRIM(path, '/')) and returns the
// groups holding more than one row.
func (s *DriveStore) DuplicateGroups(ctx context.Context) ([]DriveDuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, LOWER(RTRIM(path, '/')) AS norm
		FROM drives
		ORDER BY norm, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query drive paths: %w", err)
	}
	defer rows.Close()

	var groups []DriveDuplicateGroup
	var current *DriveDuplicateGroup
	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("scan drive path: %w", err)
		}

		if current != nil && current.Key == key {
			current.RemoveIDs = append(current.RemoveIDs, id)
			continue
		}
		if current != nil && len(current.RemoveIDs) > 0 {
			groups = append(groups, *current)
		}
		current = &DriveDuplicateGroup{Key: key, KeepID: id}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if current != nil && len(current.RemoveIDs) > 0 {
		groups = append(groups, *current)
	}
	return groups, nil
}

// Merge repoints media and files from removeIDs to keepID and deletes the
// removed drives in one transaction.
func (s *DriveStore) Merge(ctx context.Context, keepID int64, removeIDs []int64) error {
	if len(removeIDs) == 0 {
		return nil
	}

	in := dbinterface.InPlaceholders(len(removeIDs))
	args := make([]any, 0, len(removeIDs)+1)
	args = append(args, keepID)
	for _, id := range removeIDs {
		args = append(args, id)
	}

	return s.db.WithTx(ctx, "merge drives", func(tx dbinterface.TxQuerier) error {
		if _, err := tx.ExecContext(ctx, `UPDATE media SET drive_id = ? WHERE drive_id IN (`+in+`)`, args...); err != nil {
			return fmt.Errorf("repoint media: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE files SET drive_id = ? WHERE drive_id IN (`+in+`)`, args...); err != nil {
			return fmt.Errorf("repoint files: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM drives WHERE id IN (`+in+`)`, args[1:]...); err != nil {
			return fmt.Errorf("delete drives: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrive(row rowScanner) (*Drive, error) {
	var d Drive
	var device, brand, model, serial sql.NullString
	var total sql.NullInt64
	if err := row.Scan(&d.ID, &d.Name, &d.Path, &device, &brand, &model, &serial, &total, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Device = device.String
	d.Brand = brand.String
	d.Model = model.String
	d.Serial = serial.String
	d.TotalSize = total.Int64
	return &d, nil
}
