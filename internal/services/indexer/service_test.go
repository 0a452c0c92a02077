// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/archivarr/internal/database"
	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/services/enrichment"
	"github.com/autobrr/archivarr/internal/testdb"
	"github.com/autobrr/archivarr/pkg/identity"
	"github.com/autobrr/archivarr/pkg/medianame"
)

// countingDB records every statement issued outside a transaction.
type countingDB struct {
	*database.DB

	mu    sync.Mutex
	execs []string
}

func (c *countingDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	c.execs = append(c.execs, strings.Join(strings.Fields(query), " "))
	c.mu.Unlock()
	return c.DB.ExecContext(ctx, query, args...)
}

func (c *countingDB) reset() {
	c.mu.Lock()
	c.execs = nil
	c.mu.Unlock()
}

func (c *countingDB) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

type recordingQueue struct {
	mu       sync.Mutex
	requests []enrichment.Request
	panicOn  string
	block    chan struct{}
	entered  chan struct{}
}

func (q *recordingQueue) Submit(req enrichment.Request) error {
	q.mu.Lock()
	if q.panicOn != "" && req.Title == q.panicOn {
		q.panicOn = ""
		q.mu.Unlock()
		panic("enqueue exploded")
	}
	q.mu.Unlock()

	if q.block != nil {
		select {
		case q.entered <- struct{}{}:
		default:
		}
		<-q.block
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	return nil
}

func (q *recordingQueue) ids() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.requests))
	for _, r := range q.requests {
		out = append(out, r.MediaID)
	}
	return out
}

type countingSweeper struct {
	calls int
}

func (s *countingSweeper) EnrichMissing(context.Context) (*enrichment.SweepSummary, error) {
	s.calls++
	return &enrichment.SweepSummary{Total: 1}, nil
}

func writeVideo(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func tvID(title string) string {
	return identity.KeyFor(medianame.Descriptor{Type: medianame.MediaTypeTV, Title: title}).ID()
}

func movieID(title string, year int) string {
	return identity.KeyFor(medianame.Descriptor{Type: medianame.MediaTypeMovie, Title: title, Year: year}).ID()
}

func newTestService(t *testing.T, opts Options) (*Service, *countingDB) {
	t.Helper()
	db := &countingDB{DB: testdb.Open(t, "indexer")}
	return NewService(db, opts), db
}

func TestScanIndexesTVEpisode(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "tvshows", "Foo", "Season 1", "Foo - S01E02 - Bar.mkv")
	writeVideo(t, file, 1024)
	writeVideo(t, filepath.Join(root, "tvshows", "Foo", "Season 1", "notes.txt"), 10)

	svc, db := newTestService(t, Options{})
	ctx := context.Background()

	summary, err := svc.Scan(ctx, []domain.ScanRoot{{Name: "archive", Path: root}})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Indexed)
	assert.Zero(t, summary.Errors)

	media := models.NewMediaStore(db)
	m, err := media.Get(ctx, tvID("Foo"))
	require.NoError(t, err)
	assert.Equal(t, medianame.MediaTypeTV, m.Type)
	assert.Equal(t, "Foo", m.Title)
	assert.Equal(t, filepath.Join(root, "tvshows", "Foo"), m.FolderPath)
	assert.Equal(t, 1, m.SeasonCount)
	assert.Equal(t, 1, m.EpisodeCount)
	assert.EqualValues(t, 1024, m.TotalSize)

	seasons, err := media.ListSeasons(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	assert.Equal(t, 1, seasons[0].SeasonNumber)

	episodes, err := media.ListEpisodes(ctx, seasons[0].ID)
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, 2, episodes[0].EpisodeNumber)
	assert.Equal(t, "Bar", episodes[0].Title)

	snap := svc.Tracker().Snapshot()
	assert.False(t, snap.Running)
	assert.Equal(t, summary.RunID, snap.RunID)
	assert.Equal(t, FileDone, snap.Files[file].State)
	rootPath, _ := domain.ScanRoot{Path: root}.NormalizedPath()
	assert.Equal(t, RootDone, snap.Roots[rootPath].State)
	assert.Equal(t, 1, snap.Roots[rootPath].Indexed)
}

func TestScanIndexesMovie(t *testing.T) {
	root := t.TempDir()
	writeVideo(t, filepath.Join(root, "movies", "Inception (2010) 1080p.mkv"), 2048)

	queue := &recordingQueue{}
	svc, db := newTestService(t, Options{Queue: queue})
	ctx := context.Background()

	_, err := svc.Scan(ctx, []domain.ScanRoot{{Path: root, TotalSize: "4 TB"}})
	require.NoError(t, err)

	m, err := models.NewMediaStore(db).Get(ctx, movieID("Inception", 2010))
	require.NoError(t, err)
	assert.Equal(t, medianame.MediaTypeMovie, m.Type)
	require.NotNil(t, m.ReleaseYear)
	assert.Equal(t, 2010, *m.ReleaseYear)
	assert.Equal(t, "1080p", m.Quality)
	assert.EqualValues(t, 2048, m.TotalSize)

	drives, err := models.NewDriveStore(db).List(ctx)
	require.NoError(t, err)
	require.Len(t, drives, 1)
	assert.EqualValues(t, 4_000_000_000_000, drives[0].TotalSize)

	// once from the walk and once from the post-scan pass
	assert.Equal(t, []string{m.ID, m.ID}, queue.ids())
}

func TestRescanOfUnchangedTreeWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeVideo(t, filepath.Join(root, "tvshows", "Foo", "Season 1", "Foo - S01E01 - Pilot.mkv"), 100)
	writeVideo(t, filepath.Join(root, "tvshows", "Foo", "Season 1", "Foo - S01E02 - Bar.mkv"), 200)
	writeVideo(t, filepath.Join(root, "movies", "Heat (1995).mkv"), 300)

	svc, db := newTestService(t, Options{})
	ctx := context.Background()
	roots := []domain.ScanRoot{{Path: root}}

	first, err := svc.Scan(ctx, roots)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Indexed)

	before, err := models.NewMediaStore(db).Get(ctx, tvID("Foo"))
	require.NoError(t, err)

	db.reset()
	second, err := svc.Scan(ctx, roots)
	require.NoError(t, err)
	assert.Zero(t, second.Indexed)
	assert.Equal(t, 3, second.Skipped)
	assert.Zero(t, second.Aggregated)

	// only the drive refresh touches the database
	writes := db.writes()
	require.Len(t, writes, 1)
	assert.Contains(t, writes[0], "INSERT INTO drives")

	after, err := models.NewMediaStore(db).Get(ctx, tvID("Foo"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	for path, fp := range svc.Tracker().Snapshot().Files {
		assert.Equal(t, FileSkipped, fp.State, path)
	}
}

func TestRescanReindexesOnlyChangedFile(t *testing.T) {
	root := t.TempDir()
	changed := filepath.Join(root, "tvshows", "Foo", "Season 1", "Foo - S01E01 - Pilot.mkv")
	sibling := filepath.Join(root, "tvshows", "Foo", "Season 1", "Foo - S01E02 - Bar.mkv")
	writeVideo(t, changed, 100)
	writeVideo(t, sibling, 200)

	svc, db := newTestService(t, Options{})
	ctx := context.Background()
	roots := []domain.ScanRoot{{Path: root}}

	_, err := svc.Scan(ctx, roots)
	require.NoError(t, err)

	writeVideo(t, changed, 150)
	db.reset()

	summary, err := svc.Scan(ctx, roots)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 1, summary.Skipped)

	var fileWrites int
	for _, q := range db.writes() {
		if strings.Contains(q, "INTO files") {
			fileWrites++
		}
	}
	assert.Equal(t, 1, fileWrites)

	files, err := models.NewFileStore(db).ListByMedia(ctx, tvID("Foo"))
	require.NoError(t, err)
	sizes := make(map[string]int64, len(files))
	for _, f := range files {
		sizes[f.FullPath] = f.Size
	}
	assert.EqualValues(t, 150, sizes[changed])
	assert.EqualValues(t, 200, sizes[sibling])

	m, err := models.NewMediaStore(db).Get(ctx, tvID("Foo"))
	require.NoError(t, err)
	assert.EqualValues(t, 350, m.TotalSize)

	snap := svc.Tracker().Snapshot()
	assert.Equal(t, FileDone, snap.Files[changed].State)
	assert.Equal(t, FileSkipped, snap.Files[sibling].State)
}

func TestScanAggregatesSeasons(t *testing.T) {
	root := t.TempDir()
	show := filepath.Join(root, "tvshows", "Bluey")
	writeVideo(t, filepath.Join(show, "Season 1", "Bluey - S01E01 - Magic Xylophone.mkv"), 10)
	writeVideo(t, filepath.Join(show, "Season 1", "Bluey - S01E02 - Hospital.mkv"), 20)
	writeVideo(t, filepath.Join(show, "Season 2", "Bluey - S02E01 - Dance Mode.mkv"), 40)

	svc, db := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Scan(ctx, []domain.ScanRoot{{Path: root}})
	require.NoError(t, err)

	media := models.NewMediaStore(db)
	m, err := media.Get(ctx, tvID("Bluey"))
	require.NoError(t, err)

	seasons, err := media.ListSeasons(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, seasons, 2)

	var episodes int
	var size int64
	for _, s := range seasons {
		episodes += s.EpisodeCount
		size += s.TotalSize
	}
	assert.Equal(t, 2, m.SeasonCount)
	assert.Equal(t, 3, m.EpisodeCount)
	assert.Equal(t, episodes, m.EpisodeCount)
	assert.Equal(t, size, m.TotalSize)
	assert.EqualValues(t, 70, m.TotalSize)
}

func TestScanToleratesFailingFile(t *testing.T) {
	root := t.TempDir()
	bad := filepath.Join(root, "movies", "Broken (2001).mkv")
	writeVideo(t, bad, 10)
	writeVideo(t, filepath.Join(root, "movies", "Heat (1995).mkv"), 20)

	queue := &recordingQueue{panicOn: "Broken"}
	svc, _ := newTestService(t, Options{})
	svc.opts.Queue = queue

	summary, err := svc.Scan(context.Background(), []domain.ScanRoot{{Path: root}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 1, summary.Errors)

	snap := svc.Tracker().Snapshot()
	assert.Equal(t, FileError, snap.Files[bad].State)
	assert.Contains(t, snap.Files[bad].Error, "panic")
	assert.Equal(t, 1, snap.Errors)
}

func TestScanContinuesAfterMissingRoot(t *testing.T) {
	root := t.TempDir()
	writeVideo(t, filepath.Join(root, "movies", "Heat (1995).mkv"), 20)

	svc, _ := newTestService(t, Options{})
	summary, err := svc.Scan(context.Background(), []domain.ScanRoot{
		{Path: filepath.Join(root, "does-not-exist")},
		{Path: root},
	})
	require.NoError(t, err)
	require.Len(t, summary.Roots, 2)
	assert.NotEmpty(t, summary.Roots[0].Error)
	assert.Equal(t, 1, summary.Roots[1].Indexed)
}

func TestScanPrunesMissingFiles(t *testing.T) {
	root := t.TempDir()
	gone := filepath.Join(root, "movies", "Alien (1979).mkv")
	writeVideo(t, gone, 10)
	writeVideo(t, filepath.Join(root, "movies", "Heat (1995).mkv"), 20)

	svc, db := newTestService(t, Options{PruneMissing: true})
	ctx := context.Background()
	roots := []domain.ScanRoot{{Path: root}}

	_, err := svc.Scan(ctx, roots)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	summary, err := svc.Scan(ctx, roots)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Pruned)
	assert.EqualValues(t, 1, summary.Orphans)

	_, err = models.NewMediaStore(db).Get(ctx, movieID("Alien", 1979))
	require.ErrorIs(t, err, models.ErrMediaNotFound)

	count, err := models.NewFileStore(db).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestScanRunsSweeperWithoutQueue(t *testing.T) {
	root := t.TempDir()
	writeVideo(t, filepath.Join(root, "movies", "Heat (1995).mkv"), 20)

	sweeper := &countingSweeper{}
	svc, _ := newTestService(t, Options{Sweeper: sweeper})

	summary, err := svc.Scan(context.Background(), []domain.ScanRoot{{Path: root}})
	require.NoError(t, err)
	assert.Equal(t, 1, sweeper.calls)
	require.NotNil(t, summary.Enrichment)
	assert.Equal(t, 1, summary.Enrichment.Total)
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeVideo(t, filepath.Join(root, "movies", "Heat (1995).mkv"), 20)

	svc, _ := newTestService(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Scan(ctx, []domain.ScanRoot{{Path: root}})
	require.ErrorIs(t, err, context.Canceled)

	snap := svc.Tracker().Snapshot()
	assert.False(t, snap.Running)
	assert.NotEmpty(t, snap.Error)
}

func TestScansAreSerialized(t *testing.T) {
	root := t.TempDir()
	writeVideo(t, filepath.Join(root, "movies", "Heat (1995).mkv"), 20)

	queue := &recordingQueue{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	svc, _ := newTestService(t, Options{Queue: queue})
	roots := []domain.ScanRoot{{Path: root}}

	runID, err := svc.StartScan(context.Background(), roots)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	select {
	case <-queue.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("background scan did not reach the queue")
	}

	_, err = svc.Scan(context.Background(), roots)
	require.ErrorIs(t, err, ErrScanInProgress)
	_, err = svc.StartScan(context.Background(), roots)
	require.ErrorIs(t, err, ErrScanInProgress)
	assert.True(t, svc.Tracker().Snapshot().Running)

	close(queue.block)
	svc.Wait()

	snap := svc.Tracker().Snapshot()
	assert.Equal(t, runID, snap.RunID)
	assert.False(t, snap.Running)
}
