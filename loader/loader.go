// Package loader bulk-loads building records into the buildings table.
//
// Records are committed in batches with a single set-based insert. If that insert fails the
// batch is rolled back and retried one record per transaction, so a malformed record only
// costs its own row. Rows that collide with an existing (source, external_id) are dropped
// by the database and counted as duplicates; re-running a load is therefore idempotent.
package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sfomuseum/go-timings"
	"github.com/whosonfirst/go-openbuildings/database"
	"github.com/whosonfirst/go-openbuildings/records"
)

const DefaultBatchSize int = 5000

// Rows per INSERT statement inside a batch transaction.
const DefaultPageSize int = 1000

var ErrBatchInsertFailed = errors.New("Batch insert failed")

var ErrRowInsertFailed = errors.New("Row insert failed")

// Source is a forward-only sequence of parsed rows; Next returns io.EOF when it is exhausted.
type Source interface {
	Next() (records.Result, error)
}

type LoaderOptions struct {
	Database *database.DB
	// Source is the provenance recorded for every row. Defaults to database.SourceGoogle.
	Source    string
	BatchSize int
	PageSize  int
	// OnBatch, if set, is called after every batch has been committed.
	OnBatch func(context.Context, *BatchResult)
	// Monitor, if set, is signalled once per row read.
	Monitor timings.Monitor
}

type Loader struct {
	db         *database.DB
	source     string
	batch_size int
	page_size  int
	on_batch   func(context.Context, *BatchResult)
	monitor    timings.Monitor
}

func NewLoader(opts *LoaderOptions) (*Loader, error) {

	if opts.Database == nil {
		return nil, fmt.Errorf("Missing database")
	}

	source := opts.Source

	if source == "" {
		source = database.SourceGoogle
	}

	batch_size := opts.BatchSize

	if batch_size <= 0 {
		batch_size = DefaultBatchSize
	}

	page_size := opts.PageSize

	if page_size <= 0 || page_size > batch_size {
		page_size = min(DefaultPageSize, batch_size)
	}

	l := &Loader{
		db:         opts.Database,
		source:     source,
		batch_size: batch_size,
		page_size:  page_size,
		on_batch:   opts.OnBatch,
		monitor:    opts.Monitor,
	}

	return l, nil
}

// Load reads src to the end, committing accepted records in batches of exactly the configured
// size (the final batch may be smaller). Row-level problems never stop a load; the returned
// error is only set if src itself fails (for example records.ErrCorruptShard) or ctx is done,
// in which case the returned Stats still describe everything committed so far.
func (l *Loader) Load(ctx context.Context, src Source) (*Stats, error) {

	stats := NewStats()
	batch := make([]*records.Record, 0, l.batch_size)

	flush := func() error {

		if len(batch) == 0 {
			return nil
		}

		err := ctx.Err()

		if err != nil {
			return err
		}

		rsp := l.flush(ctx, batch)
		stats.addBatch(rsp)

		if l.on_batch != nil {
			l.on_batch(ctx, rsp)
		}

		batch = make([]*records.Record, 0, l.batch_size)
		return nil
	}

	for {

		r, err := src.Next()

		if err == io.EOF {
			break
		}

		if err != nil {

			flush_err := flush()

			if flush_err != nil {
				return stats, flush_err
			}

			return stats, err
		}

		stats.Processed += 1

		if l.monitor != nil {
			go l.monitor.Signal(ctx)
		}

		if r.IsSkipped() {
			stats.skip(r.Reason, 1)
			continue
		}

		batch = append(batch, r.Record)

		if len(batch) == l.batch_size {

			err := flush()

			if err != nil {
				return stats, err
			}
		}
	}

	err := flush()

	if err != nil {
		return stats, err
	}

	return stats, nil
}

func (l *Loader) flush(ctx context.Context, batch []*records.Record) *BatchResult {

	rsp := newBatchResult(len(batch))
	rsp.enter(BulkAttempted)

	n, err := l.insertBulk(ctx, batch)

	if err == nil {
		rsp.Inserted = n
		rsp.enter(Committed)
		return rsp
	}

	rsp.Err = fmt.Errorf("%w, %v", ErrBatchInsertFailed, err)
	rsp.enter(RolledBack)

	slog.Warn("Batch insert failed, falling back to row inserts", "size", len(batch), "error", err)

	rsp.enter(RowFallback)

	for _, rec := range batch {

		n, err := l.insertRow(ctx, rec)

		if err != nil {
			rsp.Failed += 1
			slog.Debug("Skip record", "external_id", rec.ExternalId, "error", fmt.Errorf("%w, %v", ErrRowInsertFailed, err))
			continue
		}

		rsp.Inserted += n
	}

	rsp.enter(CommittedPartial)
	return rsp
}

func (l *Loader) insertBulk(ctx context.Context, batch []*records.Record) (int64, error) {

	var inserted int64

	err := l.withTx(ctx, func(tx *sql.Tx) error {

		for start := 0; start < len(batch); start += l.page_size {

			end := min(start+l.page_size, len(batch))

			n, err := l.exec(ctx, tx, batch[start:end])

			if err != nil {
				return err
			}

			inserted += n
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return inserted, nil
}

func (l *Loader) insertRow(ctx context.Context, rec *records.Record) (int64, error) {

	var inserted int64

	err := l.withTx(ctx, func(tx *sql.Tx) error {

		n, err := l.exec(ctx, tx, []*records.Record{rec})

		if err != nil {
			return err
		}

		inserted = n
		return nil
	})

	return inserted, err
}

func (l *Loader) exec(ctx context.Context, tx *sql.Tx, page []*records.Record) (int64, error) {

	args := make([]any, 0, len(page)*5)

	for _, rec := range page {
		args = append(args, rec.Geometry, l.source, ExternalId(l.source, rec), nullFloat(rec.Confidence), nullFloat(rec.AreaM2))
	}

	rsp, err := tx.ExecContext(ctx, l.db.Dialect.InsertStatement(len(page)), args...)

	if err != nil {
		return 0, err
	}

	return rsp.RowsAffected()
}

// withTx commits if cb succeeds and rolls back otherwise.
func (l *Loader) withTx(ctx context.Context, cb func(*sql.Tx) error) error {

	tx, err := l.db.BeginTx(ctx, nil)

	if err != nil {
		return fmt.Errorf("Failed to begin transaction, %w", err)
	}

	err = cb(tx)

	if err != nil {

		rollback_err := tx.Rollback()

		if rollback_err != nil && !errors.Is(rollback_err, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("Failed to roll back, %w", rollback_err))
		}

		return err
	}

	err = tx.Commit()

	if err != nil {
		return fmt.Errorf("Failed to commit, %w", err)
	}

	return nil
}


// ExternalId returns the provider identifier for rec or, when it has none, a key derived from
// source and the geometry so that repeated loads still collide on (source, external_id).
func ExternalId(source string, rec *records.Record) string {

	if rec.ExternalId != "" {
		return rec.ExternalId
	}

	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(source+"#"+rec.Geometry))
	return fmt.Sprintf("%s:geom:%s", source, id.String())
}

func nullFloat(f *float64) sql.NullFloat64 {

	if f == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *f, Valid: true}
}
