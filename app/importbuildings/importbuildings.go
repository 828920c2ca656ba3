// Package importbuildings implements the import-buildings application.
package importbuildings

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaronland/gocloud-blob/bucket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sfomuseum/go-flags/flagset"
	"github.com/sfomuseum/go-timings"
	"github.com/whosonfirst/go-openbuildings/cells"
	"github.com/whosonfirst/go-openbuildings/countries"
	"github.com/whosonfirst/go-openbuildings/database"
	"github.com/whosonfirst/go-openbuildings/ingest"
	"github.com/whosonfirst/go-openbuildings/shards"
)

func Run(ctx context.Context, logger *log.Logger) error {

	fs := DefaultFlagSet()
	return RunWithFlagSet(ctx, fs, logger)
}

func RunWithFlagSet(ctx context.Context, fs *flag.FlagSet, logger *log.Logger) error {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	flagset.Parse(fs)

	cfg, err := countries.Open(ctx, countries_uri)

	if err != nil {
		return fmt.Errorf("Failed to load country configuration, %w", err)
	}

	if list_countries {
		return ListCountries(cfg, os.Stdout)
	}

	c, err := cfg.Lookup(country)

	if err != nil {
		return err
	}

	logger.Printf("Import Google Open Buildings for %s (%s)\n", c.Name, c.Code)

	if scratch_bucket_uri == "" {

		scratch_dir := filepath.Join(os.TempDir(), "google_buildings", strings.ToLower(c.Code))

		err := os.MkdirAll(scratch_dir, 0755)

		if err != nil {
			return fmt.Errorf("Failed to create scratch directory, %w", err)
		}

		scratch_bucket_uri = "file://" + filepath.ToSlash(scratch_dir)
	}

	scratch_bucket, err := bucket.OpenBucket(ctx, scratch_bucket_uri)

	if err != nil {
		return fmt.Errorf("Failed to open scratch bucket, %w", err)
	}

	defer scratch_bucket.Close()

	logger.Printf("Scratch bucket %s\n", scratch_bucket_uri)

	selector, err := cells.NewSelector(&cells.SelectorOptions{
		Coverer:  &cells.S2Coverer{},
		Level:    s2_level,
		MaxCells: max_cells,
	})

	if err != nil {
		return fmt.Errorf("Failed to create cell selector, %w", err)
	}

	fetcher, err := shards.NewFetcher(&shards.FetcherOptions{
		SourceURI: source_uri,
		Bucket:    scratch_bucket,
		Timeout:   timeout,
		Retries:   retries,
		Refresh:   refresh,
	})

	if err != nil {
		return fmt.Errorf("Failed to create shard fetcher, %w", err)
	}

	var db *database.DB

	if !dry_run {

		db, err = database.Open(ctx, database_uri)

		if err != nil {
			return fmt.Errorf("Failed to open database, %w", err)
		}

		defer db.Close()
	}

	var collector *ingest.Collector

	if pushgateway_uri != "" {

		collector, err = ingest.NewCollector(prometheus.NewRegistry())

		if err != nil {
			return fmt.Errorf("Failed to create metrics collector, %w", err)
		}
	}

	monitor, err := timings.NewMonitor(ctx, "counter://PT60S")

	if err != nil {
		return fmt.Errorf("Failed to create new monitor, %w", err)
	}

	monitor.Start(ctx, os.Stdout)
	defer monitor.Stop(ctx)

	orchestrator, err := ingest.NewOrchestrator(&ingest.OrchestratorOptions{
		Countries: cfg,
		Selector:  selector,
		Fetcher:   fetcher,
		Database:  db,
		BatchSize: batch_size,
		DryRun:    dry_run,
		KeepFiles: keep_files,
		Collector: collector,
		Monitor:   monitor,
	})

	if err != nil {
		return fmt.Errorf("Failed to create orchestrator, %w", err)
	}

	report, err := orchestrator.Run(ctx, c.Code)

	if report != nil {

		write_err := report.Write(logger.Writer())

		if write_err != nil {
			logger.Printf("Failed to write report, %v\n", write_err)
		}
	}

	if err != nil {
		return fmt.Errorf("Failed to import %s, %w", c.Code, err)
	}

	if collector != nil {

		err := collector.Push(ctx, pushgateway_uri, report)

		if err != nil {
			logger.Printf("%v\n", err)
		}
	}

	return nil
}

// ListCountries writes the code and name of each country in cfg, followed by a total.
func ListCountries(cfg *countries.Config, wr io.Writer) error {

	all := cfg.Countries()

	lines := []string{
		"Supported countries (ISO 3166-1 alpha-3 codes):",
	}

	for _, c := range all {
		lines = append(lines, fmt.Sprintf("  %s: %s", c.Code, c.Name))
	}

	lines = append(lines, fmt.Sprintf("Total: %d countries", len(all)))

	for _, ln := range lines {

		_, err := fmt.Fprintln(wr, ln)

		if err != nil {
			return err
		}
	}

	return nil
}
