// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface provides database interfaces to avoid import cycles.
// This package has no dependencies and can be imported by both database
// implementations and models/stores.
package dbinterface

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Querier is the centralized interface for database operations.
// It is implemented by *sql.DB, *sql.Tx, and *database.DB.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TxQuerier is a Querier bound to a transaction.
type TxQuerier interface {
	Querier
	Commit() error
	Rollback() error
}

// TxRunner runs a function inside a write transaction. *database.DB
// implements it with busy retry around the whole unit.
type TxRunner interface {
	Querier
	WithTx(ctx context.Context, name string, fn func(tx TxQuerier) error) error
}

// BuildQueryWithPlaceholders expands the single %s verb in template into
// numRows groups of placeholdersPerRow question marks.
func BuildQueryWithPlaceholders(template string, placeholdersPerRow, numRows int) string {
	if placeholdersPerRow <= 0 || numRows <= 0 {
		return fmt.Sprintf(template, "")
	}

	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", placeholdersPerRow), ", ") + ")"

	var b strings.Builder
	b.Grow((len(group) + 2) * numRows)
	for i := 0; i < numRows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(group)
	}

	return fmt.Sprintf(template, b.String())
}

// InPlaceholders returns "?, ?, ?" for n values, for use inside IN (...).
func InPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
