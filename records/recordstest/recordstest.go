// Package recordstest builds Open Buildings shards for tests.
package recordstest

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

var Header = []string{"latitude", "longitude", "area_in_meters", "confidence", "geometry", "full_plus_code"}

// Building returns a row for a small square footprint centred on (lat, lon).
func Building(lat float64, lon float64, plus_code string) []string {

	d := 0.0001

	wkt := fmt.Sprintf("POLYGON((%f %f, %f %f, %f %f, %f %f, %f %f))",
		lon-d, lat-d,
		lon+d, lat-d,
		lon+d, lat+d,
		lon-d, lat+d,
		lon-d, lat-d,
	)

	return []string{
		fmt.Sprintf("%f", lat),
		fmt.Sprintf("%f", lon),
		"42.5",
		"0.81",
		wkt,
		plus_code,
	}
}

// Shard returns rows, preceded by Header, as gzip-compressed CSV.
func Shard(rows ...[]string) ([]byte, error) {

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	wr := csv.NewWriter(gz)

	err := wr.Write(Header)

	if err != nil {
		return nil, err
	}

	for _, row := range rows {

		err := wr.Write(row)

		if err != nil {
			return nil, err
		}
	}

	wr.Flush()

	err = wr.Error()

	if err != nil {
		return nil, err
	}

	err = gz.Close()

	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
