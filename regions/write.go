package regions

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"github.com/whosonfirst/go-openbuildings/countries"
	"gocloud.dev/blob"
)

const crs84 string = `{"type":"name","properties":{"name":"urn:ogc:def:crs:OGC:1.3:CRS84"}}`

// Collections are the documents generated for one country.
type Collections struct {
	Country    []byte
	Regions    []byte
	Subregions []byte
	// All combines the other three under "country", "regions" and "subregions".
	All []byte
}

// Prefix is the lower-cased country name used for the output directory and file names.
func Prefix(c countries.Country) string {
	return strings.ToLower(c.Name)
}

func NewCollections(c countries.Country) (*Collections, error) {

	prefix := Prefix(c)

	country, err := collection([]*geojson.Feature{CountryFeature(c)}, prefix+"_country", false)

	if err != nil {
		return nil, fmt.Errorf("Failed to create country collection, %w", err)
	}

	regions, err := collection(RegionFeatures(c), prefix+"_regions", true)

	if err != nil {
		return nil, fmt.Errorf("Failed to create regions collection, %w", err)
	}

	subregions, err := collection(SubregionFeatures(c), prefix+"_subregions", true)

	if err != nil {
		return nil, fmt.Errorf("Failed to create subregions collection, %w", err)
	}

	all := []byte(`{}`)

	for _, m := range []struct {
		path string
		body []byte
	}{
		{"country", country},
		{"regions", regions},
		{"subregions", subregions},
	} {

		all, err = sjson.SetRawBytes(all, m.path, m.body)

		if err != nil {
			return nil, fmt.Errorf("Failed to assign %s, %w", m.path, err)
		}
	}

	cols := &Collections{
		Country:    pretty.Pretty(country),
		Regions:    pretty.Pretty(regions),
		Subregions: pretty.Pretty(subregions),
		All:        pretty.Pretty(all),
	}

	return cols, nil
}

// Write writes the collections for c to <prefix>/<prefix>_{country,regions,subregions}.geojson and
// <prefix>/<prefix>_all.json in bucket, returning the keys written.
func Write(ctx context.Context, bucket *blob.Bucket, c countries.Country) ([]string, error) {

	cols, err := NewCollections(c)

	if err != nil {
		return nil, err
	}

	prefix := Prefix(c)

	docs := []struct {
		suffix string
		body   []byte
	}{
		{"_country.geojson", cols.Country},
		{"_regions.geojson", cols.Regions},
		{"_subregions.geojson", cols.Subregions},
		{"_all.json", cols.All},
	}

	keys := make([]string, 0, len(docs))

	for _, d := range docs {

		key := fmt.Sprintf("%s/%s%s", prefix, prefix, d.suffix)

		err := bucket.WriteAll(ctx, key, d.body, nil)

		if err != nil {
			return nil, fmt.Errorf("Failed to write %s, %w", key, err)
		}

		keys = append(keys, key)
	}

	return keys, nil
}

func collection(features []*geojson.Feature, name string, with_crs bool) ([]byte, error) {

	fc := geojson.NewFeatureCollection()

	for _, f := range features {
		fc.Append(f)
	}

	body, err := fc.MarshalJSON()

	if err != nil {
		return nil, fmt.Errorf("Failed to marshal features, %w", err)
	}

	body, err = sjson.SetBytes(body, "name", name)

	if err != nil {
		return nil, fmt.Errorf("Failed to assign name, %w", err)
	}

	if with_crs {

		body, err = sjson.SetRawBytes(body, "crs", []byte(crs84))

		if err != nil {
			return nil, fmt.Errorf("Failed to assign crs, %w", err)
		}
	}

	return body, nil
}
