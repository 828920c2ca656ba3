// Package cells selects the fixed-level spatial partition cells (S2 cells by default) whose
// coverage intersects a country's bounding box. Each cell names one remote data shard.
package cells

import (
	"errors"
	"fmt"
	"sort"

	"github.com/whosonfirst/go-openbuildings/countries"
)

const DefaultLevel int = 4

const DefaultMaxCells int = 500

var ErrMissingCapability = errors.New("Missing spatial covering capability")

var ErrUnsupportedGeometry = errors.New("Unsupported geometry")

// Coverer is the capability that computes the identifiers of the cells at exactly level that cover b.
type Coverer interface {
	Cover(b countries.Bounds, level int, max_cells int) ([]string, error)
}

type SelectorOptions struct {
	Coverer  Coverer
	Level    int
	MaxCells int
}

// Selector is a pure function of (bounds, level): the same input always yields the same cells.
type Selector struct {
	coverer   Coverer
	level     int
	max_cells int
}

func NewSelector(opts *SelectorOptions) (*Selector, error) {

	if opts == nil || opts.Coverer == nil {
		return nil, fmt.Errorf("Failed to create cell selector, %w", ErrMissingCapability)
	}

	if opts.Level < 0 || opts.Level > 30 {
		return nil, fmt.Errorf("Invalid cell level %d", opts.Level)
	}

	max_cells := opts.MaxCells

	if max_cells <= 0 {
		max_cells = DefaultMaxCells
	}

	s := &Selector{
		coverer:   opts.Coverer,
		level:     opts.Level,
		max_cells: max_cells,
	}

	return s, nil
}

func (s *Selector) Level() int {
	return s.level
}

// Select returns the sorted, unique cell identifiers covering b. Degenerate (zero area) boxes,
// and boxes needing more than the configured maximum number of cells, fail with ErrUnsupportedGeometry.
func (s *Selector) Select(b countries.Bounds) ([]string, error) {

	err := b.Validate()

	if err != nil {
		return nil, fmt.Errorf("%w, %v", ErrUnsupportedGeometry, err)
	}

	if b.IsDegenerate() {
		return nil, fmt.Errorf("%w, bounding box %s has zero area", ErrUnsupportedGeometry, b)
	}

	ids, err := s.coverer.Cover(b, s.level, s.max_cells)

	if err != nil {
		return nil, fmt.Errorf("Failed to cover %s, %w", b, err)
	}

	seen := make(map[string]bool)
	cells := make([]string, 0, len(ids))

	for _, id := range ids {

		if seen[id] {
			continue
		}

		seen[id] = true
		cells = append(cells, id)
	}

	if len(cells) == 0 {
		return nil, fmt.Errorf("%w, covering for %s is empty", ErrMissingCapability, b)
	}

	if len(cells) > s.max_cells {
		return nil, fmt.Errorf("%w, %s needs %d cells at level %d (maximum %d)", ErrUnsupportedGeometry, b, len(cells), s.level, s.max_cells)
	}

	sort.Strings(cells)
	return cells, nil
}
