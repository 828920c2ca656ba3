package loader

import (
	"github.com/whosonfirst/go-openbuildings/records"
)

// BatchState is a step in the life of one batch:
//
//	Pending -> BulkAttempted -> Committed
//	Pending -> BulkAttempted -> RolledBack -> RowFallback -> CommittedPartial
type BatchState int

const (
	Pending BatchState = iota
	BulkAttempted
	Committed
	RolledBack
	RowFallback
	CommittedPartial
)

func (s BatchState) String() string {

	switch s {
	case Pending:
		return "pending"
	case BulkAttempted:
		return "bulk_attempted"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case RowFallback:
		return "row_fallback"
	case CommittedPartial:
		return "committed_partial"
	default:
		return "unknown"
	}
}

type BatchResult struct {
	Size int
	// Rows actually written.
	Inserted int64
	// Rows the database rejected during the row fallback.
	Failed int
	// Every state the batch passed through, starting with Pending.
	Transitions []BatchState
	// Err is the bulk insert failure (wrapping ErrBatchInsertFailed) when the batch fell back.
	Err error
}

func newBatchResult(size int) *BatchResult {

	return &BatchResult{
		Size:        size,
		Transitions: []BatchState{Pending},
	}
}

func (b *BatchResult) enter(s BatchState) {
	b.Transitions = append(b.Transitions, s)
}

func (b *BatchResult) State() BatchState {
	return b.Transitions[len(b.Transitions)-1]
}

func (b *BatchResult) FellBack() bool {
	return b.State() == CommittedPartial
}

// Duplicates is the number of rows absorbed by the uniqueness constraint.
func (b *BatchResult) Duplicates() int64 {
	return int64(b.Size-b.Failed) - b.Inserted
}

type Stats struct {
	// Rows read from the source, including skipped ones.
	Processed  int64
	Inserted   int64
	Duplicates int64
	// Rows skipped while reading plus rows the database rejected.
	Skipped         int64
	SkippedByReason map[records.SkipReason]int64
	Batches         int
	FallbackBatches int
}

func NewStats() *Stats {

	return &Stats{
		SkippedByReason: make(map[records.SkipReason]int64),
	}
}

func (s *Stats) skip(reason records.SkipReason, n int64) {

	if n == 0 {
		return
	}

	s.Skipped += n
	s.SkippedByReason[reason] += n
}

func (s *Stats) addBatch(b *BatchResult) {

	s.Batches += 1
	s.Inserted += b.Inserted
	s.Duplicates += b.Duplicates()
	s.skip(records.InsertFailed, int64(b.Failed))

	if b.FellBack() {
		s.FallbackBatches += 1
	}
}

// Add accumulates other into s.
func (s *Stats) Add(other *Stats) {

	s.Processed += other.Processed
	s.Inserted += other.Inserted
	s.Duplicates += other.Duplicates
	s.Batches += other.Batches
	s.FallbackBatches += other.FallbackBatches

	for reason, n := range other.SkippedByReason {
		s.skip(reason, n)
	}
}
