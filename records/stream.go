package records

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/sfomuseum/go-csvdict"
	"github.com/whosonfirst/go-openbuildings/countries"
	"gocloud.dev/blob"
)

const (
	LatitudeColumn   string = "latitude"
	LongitudeColumn  string = "longitude"
	AreaColumn       string = "area_in_meters"
	ConfidenceColumn string = "confidence"
	GeometryColumn   string = "geometry"
	PlusCodeColumn   string = "full_plus_code"
)

// Stream is a forward-only sequence of rows read from one shard. It can not be rewound;
// open the shard again to read it a second time.
type Stream struct {
	key    string
	bounds countries.Bounds
	fh     io.Closer
	gz     *gzip.Reader
	csv_rd *csvdict.Reader
	line   int
	done   bool
}

// Open opens key in bucket and returns a Stream of the rows whose centroid falls inside bounds.
func Open(ctx context.Context, bucket *blob.Bucket, key string, bounds countries.Bounds) (*Stream, error) {

	key = strings.TrimLeft(key, "/")

	fh, err := bucket.NewReader(ctx, key, nil)

	if err != nil {
		return nil, fmt.Errorf("Failed to open reader for '%s', %w", key, err)
	}

	s, err := NewStream(fh, key, bounds)

	if err != nil {
		fh.Close()
		return nil, err
	}

	s.fh = fh
	return s, nil
}

// NewStream returns a Stream reading gzip-compressed CSV from r. The caller owns r.
func NewStream(r io.Reader, key string, bounds countries.Bounds) (*Stream, error) {

	gz, err := gzip.NewReader(r)

	if err != nil {
		return nil, fmt.Errorf("%w, failed to decompress %s, %v", ErrCorruptShard, key, err)
	}

	csv_rd, err := csvdict.NewReader(gz)

	if err != nil {
		gz.Close()
		return nil, fmt.Errorf("%w, failed to read header for %s, %v", ErrCorruptShard, key, err)
	}

	s := &Stream{
		key:    key,
		bounds: bounds,
		gz:     gz,
		csv_rd: csv_rd,
		line:   1,
	}

	return s, nil
}

// Next returns the next row. It returns io.EOF when the shard is exhausted and an error wrapping
// ErrCorruptShard if the shard can not be decompressed. Invalid rows are returned as skipped Results, not errors.
func (s *Stream) Next() (Result, error) {

	if s.done {
		return Result{}, io.EOF
	}

	row, err := s.csv_rd.Read()
	s.line += 1

	if err != nil {

		var parse_err *csv.ParseError

		switch {
		case errors.Is(err, io.EOF):
			s.done = true
			return Result{}, io.EOF
		case errors.As(err, &parse_err):
			return skipped(s.line, MalformedRow, err), nil
		default:
			s.done = true
			return Result{}, fmt.Errorf("%w, failed to read %s at line %d, %v", ErrCorruptShard, s.key, s.line, err)
		}
	}

	return s.parse(row), nil
}

func (s *Stream) parse(row map[string]string) Result {

	lat, err := strconv.ParseFloat(strings.TrimSpace(row[LatitudeColumn]), 64)

	if err != nil {
		return skipped(s.line, InvalidCoordinates, err)
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(row[LongitudeColumn]), 64)

	if err != nil {
		return skipped(s.line, InvalidCoordinates, err)
	}

	if !s.bounds.Contains(lat, lon) {
		return skipped(s.line, OutOfBounds, nil)
	}

	area, err := optionalFloat(row[AreaColumn])

	if err != nil {
		return skipped(s.line, InvalidAttributes, err)
	}

	confidence, err := optionalFloat(row[ConfidenceColumn])

	if err != nil {
		return skipped(s.line, InvalidAttributes, err)
	}

	geom := strings.TrimSpace(row[GeometryColumn])

	if geom == "" {
		return skipped(s.line, EmptyGeometry, nil)
	}

	rec := &Record{
		Geometry:   geom,
		ExternalId: strings.TrimSpace(row[PlusCodeColumn]),
		Confidence: confidence,
		AreaM2:     area,
		Latitude:   lat,
		Longitude:  lon,
	}

	return parsed(s.line, rec)
}

func (s *Stream) Key() string {
	return s.key
}

func (s *Stream) Close() error {

	err := s.gz.Close()

	if s.fh != nil {

		fh_err := s.fh.Close()

		if err == nil {
			err = fh_err
		}
	}

	return err
}

func optionalFloat(v string) (*float64, error) {

	v = strings.TrimSpace(v)

	if v == "" {
		return nil, nil
	}

	f, err := strconv.ParseFloat(v, 64)

	if err != nil {
		return nil, err
	}

	return &f, nil
}
