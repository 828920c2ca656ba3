// Package records reads building footprints from gzip-compressed Open Buildings CSV shards.
package records

import (
	"errors"
	"fmt"
)

var ErrCorruptShard = errors.New("Corrupt shard")

type SkipReason int

const (
	NotSkipped SkipReason = iota
	// The row could not be read as CSV (for example a wrong number of fields).
	MalformedRow
	// latitude or longitude is missing or not a number.
	InvalidCoordinates
	// area_in_meters or confidence is present but not a number.
	InvalidAttributes
	OutOfBounds
	EmptyGeometry
	// The record was read but the database did not accept it.
	InsertFailed
)

func (r SkipReason) String() string {

	switch r {
	case NotSkipped:
		return "none"
	case MalformedRow:
		return "malformed_row"
	case InvalidCoordinates:
		return "invalid_coordinates"
	case InvalidAttributes:
		return "invalid_attributes"
	case OutOfBounds:
		return "out_of_bounds"
	case EmptyGeometry:
		return "empty_geometry"
	case InsertFailed:
		return "insert_failed"
	default:
		return fmt.Sprintf("reason_%d", int(r))
	}
}

// Record is one building footprint that passed validation and bounds filtering.
type Record struct {
	// Well-known text (multi)polygon.
	Geometry string
	// Provider identifier, for Open Buildings the full plus code.
	ExternalId string
	Confidence *float64
	AreaM2     *float64
	Latitude   float64
	Longitude  float64
}

// Result is either a parsed Record or the reason a row was skipped.
type Result struct {
	Line   int
	Record *Record
	Reason SkipReason
	Err    error
}

func (r Result) IsSkipped() bool {
	return r.Reason != NotSkipped
}

func parsed(line int, rec *Record) Result {
	return Result{Line: line, Record: rec}
}

func skipped(line int, reason SkipReason, err error) Result {
	return Result{Line: line, Reason: reason, Err: err}
}
