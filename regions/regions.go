// Package regions generates approximate circular region and subregion polygons for a country,
// for use as community addressing areas. Distances are converted to degrees with a cosine of
// latitude correction only; the shapes are deliberately rough, not geodesic circles.
package regions

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/whosonfirst/go-openbuildings/countries"
)

// Number of distinct points in a circle; rings are closed so they carry one more.
const CirclePoints int = 32

const KmPerDegree float64 = 111.0

// LatitudeFactor squashes circles (and subregion offsets) north-south.
const LatitudeFactor float64 = 0.9

const (
	CountryLevel int = iota
	RegionLevel
	SubregionLevel
)

// Subregion is a direction relative to a region's center. Offset is in units of half the region
// radius, X to the east and Y to the north.
type Subregion struct {
	Code         string
	Name         string
	Offset       orb.Point
	RadiusFactor float64
}

// Subregions are the same for every region.
var Subregions = []Subregion{
	{Code: "C", Name: "Central", Offset: orb.Point{0, 0}, RadiusFactor: 0.25},
	{Code: "N", Name: "North", Offset: orb.Point{0, 0.65}, RadiusFactor: 0.28},
	{Code: "S", Name: "South", Offset: orb.Point{0, -0.65}, RadiusFactor: 0.28},
	{Code: "E", Name: "East", Offset: orb.Point{0.65, 0}, RadiusFactor: 0.28},
	{Code: "W", Name: "West", Offset: orb.Point{-0.65, 0}, RadiusFactor: 0.28},
	{Code: "NW", Name: "Northwest", Offset: orb.Point{-0.5, 0.5}, RadiusFactor: 0.25},
	{Code: "NE", Name: "Northeast", Offset: orb.Point{0.5, 0.5}, RadiusFactor: 0.25},
	{Code: "SW", Name: "Southwest", Offset: orb.Point{-0.5, -0.5}, RadiusFactor: 0.25},
	{Code: "SE", Name: "Southeast", Offset: orb.Point{0.5, -0.5}, RadiusFactor: 0.25},
}

func KmToDegrees(km float64, latitude float64) float64 {
	return km / (KmPerDegree * math.Cos(latitude*math.Pi/180.0))
}

// Circle returns a closed ring of CirclePoints points around center (lon, lat), rounded to 6 decimal places.
func Circle(center orb.Point, radius_km float64) orb.Polygon {

	radius := KmToDegrees(radius_km, center.Lat())
	ring := make(orb.Ring, 0, CirclePoints+1)

	for i := 0; i < CirclePoints; i++ {

		angle := 2 * math.Pi * float64(i) / float64(CirclePoints)

		lon := center.Lon() + radius*math.Cos(angle)
		lat := center.Lat() + radius*math.Sin(angle)*LatitudeFactor

		ring = append(ring, orb.Point{round(lon), round(lat)})
	}

	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// SubregionCenter returns the center of sub within region r.
func SubregionCenter(r countries.Region, sub Subregion) orb.Point {

	unit := KmToDegrees(r.RadiusKm*0.5, r.Center.Lat())

	lon := r.Center.Lon() + sub.Offset.X()*unit
	lat := r.Center.Lat() + sub.Offset.Y()*unit*LatitudeFactor

	return orb.Point{lon, lat}
}

// CountryFeature is the country's bounding box as a level 0 feature.
func CountryFeature(c countries.Country) *geojson.Feature {

	f := geojson.NewFeature(orb.Polygon{c.Bounds.Ring()})

	f.Properties["code"] = c.Code
	f.Properties["name"] = c.Name
	f.Properties["level"] = CountryLevel
	f.Properties["parent_code"] = nil
	f.Properties["center_lon"] = round(c.Center.Lon())
	f.Properties["center_lat"] = round(c.Center.Lat())

	return f
}

func RegionFeatures(c countries.Country) []*geojson.Feature {

	features := make([]*geojson.Feature, 0, len(c.Regions))

	for _, r := range c.Regions {

		f := geojson.NewFeature(Circle(r.Center, r.RadiusKm))

		f.Properties["code"] = r.Code
		f.Properties["name"] = r.Name
		f.Properties["level"] = RegionLevel
		f.Properties["parent_code"] = c.Code
		f.Properties["center_lon"] = r.Center.Lon()
		f.Properties["center_lat"] = r.Center.Lat()

		features = append(features, f)
	}

	return features
}

func SubregionFeatures(c countries.Country) []*geojson.Feature {

	features := make([]*geojson.Feature, 0, len(c.Regions)*len(Subregions))

	for _, r := range c.Regions {

		for _, sub := range Subregions {

			center := SubregionCenter(r, sub)

			f := geojson.NewFeature(Circle(center, r.RadiusKm*sub.RadiusFactor))

			f.Properties["code"] = SubregionCode(r.Code, sub.Code)
			f.Properties["subregion_code"] = sub.Code
			f.Properties["name"] = fmt.Sprintf("%s %s", sub.Name, r.Name)
			f.Properties["level"] = SubregionLevel
			f.Properties["parent_code"] = r.Code
			f.Properties["center_lon"] = round(center.Lon())
			f.Properties["center_lat"] = round(center.Lat())

			features = append(features, f)
		}
	}

	return features
}

func SubregionCode(region string, sub string) string {
	return fmt.Sprintf("%s-%s", region, sub)
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
