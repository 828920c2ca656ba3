package cells

import (
	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/whosonfirst/go-openbuildings/countries"
)

// S2Coverer covers bounding boxes with S2 cells and identifies them by their tokens,
// which is how the Open Buildings shards are named.
type S2Coverer struct{}

func (S2Coverer) Cover(b countries.Bounds, level int, max_cells int) ([]string, error) {

	rect := Rect(b)

	// At a fixed level MaxCells is advisory; Selector enforces the hard limit.
	rc := &s2.RegionCoverer{
		MinLevel: level,
		MaxLevel: level,
		MaxCells: max_cells,
	}

	covering := rc.Covering(rect)

	tokens := make([]string, len(covering))

	for i, id := range covering {
		tokens[i] = id.ToToken()
	}

	return tokens, nil
}

// Rect returns b as an S2 rectangle spanning MinLon eastwards to MaxLon, however wide.
func Rect(b countries.Bounds) s2.Rect {

	radians := func(deg float64) float64 {
		return (s1.Angle(deg) * s1.Degree).Radians()
	}

	return s2.Rect{
		Lat: r1.Interval{Lo: radians(b.MinLat), Hi: radians(b.MaxLat)},
		Lng: s1.IntervalFromEndpoints(radians(b.MinLon), radians(b.MaxLon)),
	}
}
