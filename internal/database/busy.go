// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	defaultBusyAttempts = 5
	defaultBusyDelay    = 2 * time.Second
)

// BusyRetryPolicy retries operations that fail because another connection
// holds the database lock.
type BusyRetryPolicy struct {
	Attempts uint
	Delay    time.Duration
}

func DefaultBusyRetryPolicy() BusyRetryPolicy {
	return BusyRetryPolicy{
		Attempts: defaultBusyAttempts,
		Delay:    defaultBusyDelay,
	}
}

// Do runs fn, retrying with a fixed delay while it returns a busy error.
// The last error is returned once attempts are exhausted.
func (p BusyRetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}

	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsBusy),
		retry.OnRetry(func(n uint, err error) {
			recordBusyRetry()
			log.Warn().
				Err(err).
				Uint("attempt", n+1).
				Uint("maxAttempts", attempts).
				Str("op", truncateOp(op)).
				Msg("database busy, retrying")
		}),
	)
}

// IsBusy reports whether err is a retriable SQLITE_BUSY or SQLITE_LOCKED
// condition, including their extended result codes.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy")
}

func truncateOp(op string) string {
	op = strings.Join(strings.Fields(op), " ")
	if len(op) > 64 {
		return op[:64] + "..."
	}
	return op
}
