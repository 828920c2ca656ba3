package countries

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Bounds is a latitude/longitude bounding box in decimal degrees.
type Bounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (b Bounds) Validate() error {

	if b.MinLat > b.MaxLat {
		return fmt.Errorf("Invalid bounds, min_lat %f > max_lat %f", b.MinLat, b.MaxLat)
	}

	if b.MinLon > b.MaxLon {
		return fmt.Errorf("Invalid bounds, min_lon %f > max_lon %f", b.MinLon, b.MaxLon)
	}

	return nil
}

// Bound returns b as an orb.Bound (X is longitude, Y is latitude).
func (b Bounds) Bound() orb.Bound {

	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Contains reports whether (lat, lon) falls inside b. All four edges are inclusive.
func (b Bounds) Contains(lat float64, lon float64) bool {
	return b.Bound().Contains(orb.Point{lon, lat})
}

// IsDegenerate reports whether b encloses zero area.
func (b Bounds) IsDegenerate() bool {
	return b.MinLat == b.MaxLat || b.MinLon == b.MaxLon
}

// Ring returns the closed bounding box ring, starting and ending at the south-west corner.
func (b Bounds) Ring() orb.Ring {

	return orb.Ring{
		orb.Point{b.MinLon, b.MinLat},
		orb.Point{b.MinLon, b.MaxLat},
		orb.Point{b.MaxLon, b.MaxLat},
		orb.Point{b.MaxLon, b.MinLat},
		orb.Point{b.MinLon, b.MinLat},
	}
}

func (b Bounds) String() string {
	return fmt.Sprintf("lat [%v, %v], lon [%v, %v]", b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
}
