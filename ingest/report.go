package ingest

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/whosonfirst/go-openbuildings/countries"
	"github.com/whosonfirst/go-openbuildings/database"
	"github.com/whosonfirst/go-openbuildings/loader"
	"github.com/whosonfirst/go-openbuildings/shards"
)

// ShardReport describes what happened to the shard for one cell.
type ShardReport struct {
	Fetch *shards.FetchResult
	// Stats is nil if the shard was never loaded.
	Stats *loader.Stats
	// Corrupt is set if the shard could not be read to the end.
	Corrupt bool
	Err     error
}

// Outcome is one of downloaded, present, absent, failed or corrupt.
func (s *ShardReport) Outcome() string {

	if s.Corrupt {
		return "corrupt"
	}

	return s.Fetch.Status.String()
}

type Report struct {
	RunId   string
	Country countries.Country
	Cells   []string
	DryRun  bool
	Shards  []*ShardReport
	Totals  *loader.Stats
	// Row counts per source after the run. Empty for dry runs.
	SourceCounts []database.SourceCount
	// Keys removed from the scratch bucket.
	Removed  []string
	Started  time.Time
	Finished time.Time
}

func newReport(run_id string, c countries.Country, dry_run bool) *Report {

	return &Report{
		RunId:   run_id,
		Country: c,
		DryRun:  dry_run,
		Shards:  make([]*ShardReport, 0),
		Totals:  loader.NewStats(),
		Started: time.Now(),
	}
}

func (r *Report) Inserted() int64 {
	return r.Totals.Inserted
}

func (r *Report) Skipped() int64 {
	return r.Totals.Skipped
}

// Outcomes counts shards by outcome.
func (r *Report) Outcomes() map[string]int {

	outcomes := make(map[string]int)

	for _, s := range r.Shards {
		outcomes[s.Outcome()] += 1
	}

	return outcomes
}

// Write prints a human readable summary of r to wr.
func (r *Report) Write(wr io.Writer) error {

	lines := []string{
		fmt.Sprintf("Import %s for %s (%s)", r.RunId, r.Country.Name, r.Country.Code),
		fmt.Sprintf("  Bounds: %s", r.Country.Bounds),
		fmt.Sprintf("  Cells: %d", len(r.Cells)),
	}

	outcomes := r.Outcomes()
	keys := make([]string, 0, len(outcomes))

	for k := range outcomes {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  Shards %s: %d", k, outcomes[k]))
	}

	if r.DryRun {
		lines = append(lines, "  Dry run, nothing imported")
	} else {

		lines = append(lines,
			fmt.Sprintf("  Processed: %d", r.Totals.Processed),
			fmt.Sprintf("  Inserted: %d", r.Totals.Inserted),
			fmt.Sprintf("  Duplicates: %d", r.Totals.Duplicates),
			fmt.Sprintf("  Skipped: %d", r.Totals.Skipped),
		)

		reasons := make([]string, 0, len(r.Totals.SkippedByReason))
		counts := make(map[string]int64)

		for reason, n := range r.Totals.SkippedByReason {
			reasons = append(reasons, reason.String())
			counts[reason.String()] = n
		}

		sort.Strings(reasons)

		for _, reason := range reasons {
			lines = append(lines, fmt.Sprintf("    %s: %d", reason, counts[reason]))
		}

		lines = append(lines, fmt.Sprintf("  Batches: %d (%d fell back to row inserts)", r.Totals.Batches, r.Totals.FallbackBatches))

		for _, c := range r.SourceCounts {
			lines = append(lines, fmt.Sprintf("  Buildings from %s: %d", c.Source, c.Count))
		}
	}

	lines = append(lines, fmt.Sprintf("  Duration: %v", r.Finished.Sub(r.Started).Round(time.Millisecond)))

	for _, ln := range lines {

		_, err := fmt.Fprintln(wr, ln)

		if err != nil {
			return err
		}
	}

	return nil
}
