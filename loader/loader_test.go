package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whosonfirst/go-openbuildings/database"
	"github.com/whosonfirst/go-openbuildings/records"
)

type sliceSource struct {
	results []records.Result
	err     error
	pos     int
}

func (s *sliceSource) Next() (records.Result, error) {

	if s.pos >= len(s.results) {

		if s.err != nil {
			return records.Result{}, s.err
		}

		return records.Result{}, io.EOF
	}

	r := s.results[s.pos]
	s.pos += 1
	return r, nil
}

func building(i int) records.Result {

	confidence := 0.8
	area := 30.0

	rec := &records.Record{
		Geometry:   fmt.Sprintf("POLYGON((%d 0,%d 1,%d 1,%d 0))", i, i, i+1, i),
		ExternalId: fmt.Sprintf("6GGJ8JPF+%03d", i),
		Confidence: &confidence,
		AreaM2:     &area,
	}

	return records.Result{Line: i + 2, Record: rec}
}

func buildings(n int) []records.Result {

	results := make([]records.Result, n)

	for i := 0; i < n; i++ {
		results[i] = building(i)
	}

	return results
}

func openTestDB(t *testing.T) *database.DB {

	t.Helper()

	ctx := context.Background()
	uri := "sqlite://" + filepath.Join(t.TempDir(), "buildings.db")

	db, err := database.Open(ctx, uri)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Ensure())
	return db
}

func countRows(t *testing.T, db *database.DB) int64 {

	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM buildings").Scan(&n)
	require.NoError(t, err)
	return n
}

func TestLoadBatches(t *testing.T) {

	ctx := context.Background()
	db := openTestDB(t)

	var batches []*BatchResult

	l, err := NewLoader(&LoaderOptions{
		Database:  db,
		BatchSize: 4,
		PageSize:  3,
		OnBatch: func(ctx context.Context, b *BatchResult) {
			batches = append(batches, b)
		},
	})

	require.NoError(t, err)

	stats, err := l.Load(ctx, &sliceSource{results: buildings(10)})
	require.NoError(t, err)

	assert.Equal(t, int64(10), stats.Processed)
	assert.Equal(t, int64(10), stats.Inserted)
	assert.Equal(t, int64(0), stats.Skipped)
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 0, stats.FallbackBatches)

	require.Len(t, batches, 3)
	assert.Equal(t, []int{4, 4, 2}, []int{batches[0].Size, batches[1].Size, batches[2].Size})

	for _, b := range batches {
		assert.Equal(t, []BatchState{Pending, BulkAttempted, Committed}, b.Transitions)
		assert.NoError(t, b.Err)
	}

	assert.Equal(t, int64(10), countRows(t, db))

	counts, err := db.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, []database.SourceCount{{Source: database.SourceGoogle, Count: 10}}, counts)
}

func TestLoadFallsBackToRows(t *testing.T) {

	ctx := context.Background()
	db := openTestDB(t)

	results := buildings(5)
	results[2].Record.Geometry = "NOT A GEOMETRY"

	var batches []*BatchResult

	l, err := NewLoader(&LoaderOptions{
		Database: db,
		OnBatch: func(ctx context.Context, b *BatchResult) {
			batches = append(batches, b)
		},
	})

	require.NoError(t, err)

	stats, err := l.Load(ctx, &sliceSource{results: results})
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(4), stats.Inserted)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(1), stats.SkippedByReason[records.InsertFailed])
	assert.Equal(t, int64(0), stats.Duplicates)
	assert.Equal(t, 1, stats.FallbackBatches)

	require.Len(t, batches, 1)

	b := batches[0]
	assert.Equal(t, []BatchState{Pending, BulkAttempted, RolledBack, RowFallback, CommittedPartial}, b.Transitions)
	assert.True(t, b.FellBack())
	assert.Equal(t, 1, b.Failed)
	assert.True(t, errors.Is(b.Err, ErrBatchInsertFailed))

	assert.Equal(t, int64(4), countRows(t, db))
}

func TestLoadIsIdempotent(t *testing.T) {

	ctx := context.Background()
	db := openTestDB(t)

	l, err := NewLoader(&LoaderOptions{Database: db, BatchSize: 3})
	require.NoError(t, err)

	first, err := l.Load(ctx, &sliceSource{results: buildings(7)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), first.Inserted)

	second, err := l.Load(ctx, &sliceSource{results: buildings(7)})
	require.NoError(t, err)

	assert.Equal(t, int64(7), second.Processed)
	assert.Equal(t, int64(0), second.Inserted)
	assert.Equal(t, int64(7), second.Duplicates)
	assert.Equal(t, int64(0), second.Skipped)
	assert.Equal(t, 0, second.FallbackBatches)

	assert.Equal(t, int64(7), countRows(t, db))
}

func TestLoadWithoutExternalIdIsIdempotent(t *testing.T) {

	ctx := context.Background()
	db := openTestDB(t)

	results := func() []records.Result {

		r := buildings(3)

		for _, b := range r {
			b.Record.ExternalId = ""
		}

		return r
	}

	l, err := NewLoader(&LoaderOptions{Database: db})
	require.NoError(t, err)

	first, err := l.Load(ctx, &sliceSource{results: results()})
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Inserted)

	second, err := l.Load(ctx, &sliceSource{results: results()})
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Inserted)
	assert.Equal(t, int64(3), second.Duplicates)

	assert.Equal(t, int64(3), countRows(t, db))

	var n int64
	err = db.QueryRow("SELECT COUNT(*) FROM buildings WHERE external_id IS NULL").Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestExternalId(t *testing.T) {

	rec := building(1).Record
	assert.Equal(t, rec.ExternalId, ExternalId(database.SourceGoogle, rec))

	rec.ExternalId = ""

	a := ExternalId(database.SourceGoogle, rec)
	assert.Equal(t, a, ExternalId(database.SourceGoogle, rec))
	assert.NotEqual(t, a, ExternalId(database.SourceOSM, rec))

	other := building(2).Record
	other.ExternalId = ""
	assert.NotEqual(t, a, ExternalId(database.SourceGoogle, other))
}

func TestLoadCountsSkippedRows(t *testing.T) {

	ctx := context.Background()
	db := openTestDB(t)

	results := []records.Result{
		building(0),
		{Line: 3, Reason: records.OutOfBounds},
		{Line: 4, Reason: records.InvalidCoordinates},
		building(1),
		{Line: 6, Reason: records.OutOfBounds},
	}

	l, err := NewLoader(&LoaderOptions{Database: db})
	require.NoError(t, err)

	stats, err := l.Load(ctx, &sliceSource{results: results})
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(2), stats.Inserted)
	assert.Equal(t, int64(3), stats.Skipped)
	assert.Equal(t, int64(2), stats.SkippedByReason[records.OutOfBounds])
	assert.Equal(t, int64(1), stats.SkippedByReason[records.InvalidCoordinates])
}

func TestLoadSourceError(t *testing.T) {

	ctx := context.Background()
	db := openTestDB(t)

	src := &sliceSource{
		results: buildings(3),
		err:     fmt.Errorf("%w, unexpected EOF", records.ErrCorruptShard),
	}

	l, err := NewLoader(&LoaderOptions{Database: db, BatchSize: 2})
	require.NoError(t, err)

	stats, err := l.Load(ctx, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, records.ErrCorruptShard))

	// rows read before the failure are kept
	assert.Equal(t, int64(3), stats.Inserted)
	assert.Equal(t, int64(3), countRows(t, db))
}

func TestLoadCancelled(t *testing.T) {

	db := openTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l, err := NewLoader(&LoaderOptions{Database: db, BatchSize: 2})
	require.NoError(t, err)

	_, err = l.Load(ctx, &sliceSource{results: buildings(4)})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(0), countRows(t, db))
}

func TestNewLoaderDefaults(t *testing.T) {

	_, err := NewLoader(&LoaderOptions{})
	assert.Error(t, err)

	db := openTestDB(t)

	l, err := NewLoader(&LoaderOptions{Database: db, BatchSize: 10})
	require.NoError(t, err)

	assert.Equal(t, database.SourceGoogle, l.source)
	assert.Equal(t, 10, l.batch_size)
	assert.Equal(t, 10, l.page_size)
}

func TestStatsAdd(t *testing.T) {

	a := NewStats()
	a.Processed = 3
	a.Inserted = 2
	a.skip(records.OutOfBounds, 1)

	b := NewStats()
	b.Processed = 4
	b.Inserted = 1
	b.Duplicates = 2
	b.skip(records.OutOfBounds, 1)

	a.Add(b)

	assert.Equal(t, int64(7), a.Processed)
	assert.Equal(t, int64(3), a.Inserted)
	assert.Equal(t, int64(2), a.Duplicates)
	assert.Equal(t, int64(2), a.Skipped)
	assert.Equal(t, int64(2), a.SkippedByReason[records.OutOfBounds])
}
