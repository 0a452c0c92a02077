// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import "time"

// RootState is the lifecycle of a scan root within one run.
type RootState string

const (
	RootIdle     RootState = "idle"
	RootScanning RootState = "scanning"
	RootDone     RootState = "done"
)

// FileState is the lifecycle of a single video file within one run.
type FileState string

const (
	FilePending  FileState = "pending"
	FileIndexing FileState = "indexing"
	FileDone     FileState = "done"
	FileSkipped  FileState = "skipped"
	FileError    FileState = "error"
)

// Terminal reports whether no further transition follows in the same run.
func (s FileState) Terminal() bool {
	return s == FileDone || s == FileSkipped || s == FileError
}

type EventKind string

const (
	EventRunStarted  EventKind = "run_started"
	EventRootStarted EventKind = "root_started"
	EventFile        EventKind = "file"
	EventRootDone    EventKind = "root_done"
	EventRunDone     EventKind = "run_done"
)

// Event is one progress update published by the walker. Root is the
// normalized root path; Path and FileState are only set for EventFile.
type Event struct {
	RunID     string
	Kind      EventKind
	Root      string
	Path      string
	FileState FileState
	Error     string
	At        time.Time
}
