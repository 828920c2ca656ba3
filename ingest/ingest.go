// Package ingest imports the Open Buildings footprints for one country: it selects the cells
// covering the country, fetches each cell's shard into a scratch bucket, and streams the rows
// that fall inside the country into the buildings table.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sfomuseum/go-timings"
	"github.com/whosonfirst/go-openbuildings/cells"
	"github.com/whosonfirst/go-openbuildings/countries"
	"github.com/whosonfirst/go-openbuildings/database"
	"github.com/whosonfirst/go-openbuildings/loader"
	"github.com/whosonfirst/go-openbuildings/records"
	"github.com/whosonfirst/go-openbuildings/shards"
)

type OrchestratorOptions struct {
	Countries *countries.Config
	Selector  *cells.Selector
	Fetcher   *shards.Fetcher
	// Database may be nil for dry runs.
	Database  *database.DB
	BatchSize int
	// DryRun selects cells and fetches shards but does not touch the database.
	DryRun bool
	// KeepFiles leaves shards in the scratch bucket after the run.
	KeepFiles bool
	Collector *Collector
	Monitor   timings.Monitor
}

type Orchestrator struct {
	countries  *countries.Config
	selector   *cells.Selector
	fetcher    *shards.Fetcher
	db         *database.DB
	batch_size int
	dry_run    bool
	keep_files bool
	collector  *Collector
	monitor    timings.Monitor
}

func NewOrchestrator(opts *OrchestratorOptions) (*Orchestrator, error) {

	if opts.Countries == nil {
		return nil, fmt.Errorf("Missing country configuration")
	}

	if opts.Selector == nil {
		return nil, fmt.Errorf("%w, missing cell selector", cells.ErrMissingCapability)
	}

	if opts.Fetcher == nil {
		return nil, fmt.Errorf("Missing shard fetcher")
	}

	if opts.Database == nil && !opts.DryRun {
		return nil, fmt.Errorf("Missing database")
	}

	o := &Orchestrator{
		countries:  opts.Countries,
		selector:   opts.Selector,
		fetcher:    opts.Fetcher,
		db:         opts.Database,
		batch_size: opts.BatchSize,
		dry_run:    opts.DryRun,
		keep_files: opts.KeepFiles,
		collector:  opts.Collector,
		monitor:    opts.Monitor,
	}

	return o, nil
}

// Run imports the country matching q (a code or a name). Only an unknown country, a missing
// covering capability, an unusable bounding box or a failed schema migration end a run early;
// every shard level problem is recorded in the Report and the run moves on to the next cell.
func (o *Orchestrator) Run(ctx context.Context, q string) (*Report, error) {

	c, err := o.countries.Lookup(q)

	if err != nil {
		return nil, err
	}

	report := newReport(uuid.NewString(), c, o.dry_run)

	logger := slog.Default().With("run", report.RunId, "country", c.Code)

	cell_ids, err := o.selector.Select(c.Bounds)

	if err != nil {
		return nil, fmt.Errorf("Failed to select cells for %s, %w", c.Code, err)
	}

	report.Cells = cell_ids

	logger.Info("Selected cells", "bounds", c.Bounds.String(), "level", o.selector.Level(), "count", len(cell_ids))

	var ld *loader.Loader

	if !o.dry_run {

		err := o.db.Ensure()

		if err != nil {
			return nil, fmt.Errorf("Failed to apply schema migrations, %w", err)
		}

		ld, err = loader.NewLoader(&loader.LoaderOptions{
			Database:  o.db,
			Source:    database.SourceGoogle,
			BatchSize: o.batch_size,
			Monitor:   o.monitor,
			OnBatch: func(ctx context.Context, b *loader.BatchResult) {
				if b.FellBack() {
					logger.Warn("Batch fell back to row inserts", "size", b.Size, "inserted", b.Inserted, "failed", b.Failed, "error", b.Err)
				}
			},
		})

		if err != nil {
			return nil, fmt.Errorf("Failed to create loader, %w", err)
		}
	}

	keys := make([]string, 0)

	for _, cell := range cell_ids {

		err := ctx.Err()

		if err != nil {
			return report, err
		}

		fetch := o.fetcher.Fetch(ctx, cell)
		shard := &ShardReport{Fetch: fetch}

		report.Shards = append(report.Shards, shard)

		switch fetch.Status {
		case shards.Absent:
			logger.Debug("No shard for cell", "cell", cell)
			continue
		case shards.Failed:
			shard.Err = fetch.Err
			logger.Warn("Failed to fetch shard", "cell", cell, "url", fetch.URL, "error", fetch.Err)
			continue
		}

		keys = append(keys, fetch.Key)

		logger.Info("Shard ready", "cell", cell, "key", fetch.Key, "status", fetch.Status.String(), "bytes", fetch.Bytes)

		if o.dry_run {
			continue
		}

		stats, err := o.load(ctx, ld, fetch.Key, c.Bounds)

		if stats != nil {
			shard.Stats = stats
			report.Totals.Add(stats)
		}

		if err != nil {

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}

			shard.Corrupt = true
			shard.Err = err
			logger.Warn("Failed to read shard", "cell", cell, "key", fetch.Key, "error", err)
			continue
		}

		logger.Info("Loaded shard", "cell", cell, "processed", stats.Processed, "inserted", stats.Inserted, "skipped", stats.Skipped, "duplicates", stats.Duplicates)
	}

	if !o.dry_run {

		counts, err := o.db.CountBySource(ctx)

		if err != nil {
			logger.Warn("Failed to count buildings by source", "error", err)
		} else {
			report.SourceCounts = counts
		}
	}

	if !o.dry_run && !o.keep_files {

		err := shards.Cleanup(ctx, o.fetcher.Bucket(), keys...)

		if err != nil {
			logger.Warn("Failed to remove scratch files", "error", err)
		} else {
			report.Removed = keys
		}
	}

	report.Finished = time.Now()

	o.collector.Observe(report)

	return report, nil
}

func (o *Orchestrator) load(ctx context.Context, ld *loader.Loader, key string, bounds countries.Bounds) (*loader.Stats, error) {

	stream, err := records.Open(ctx, o.fetcher.Bucket(), key, bounds)

	if err != nil {
		return nil, err
	}

	defer stream.Close()

	return ld.Load(ctx, stream)
}
