package generateregions

import (
	"flag"

	"github.com/sfomuseum/go-flags/flagset"
)

var countries_uri string
var target_bucket_uri string

func DefaultFlagSet() *flag.FlagSet {

	fs := flagset.NewFlagSet("generate-regions")

	fs.StringVar(&countries_uri, "countries-uri", "", "A valid GoCloud blob URI for a JSON document of country definitions. If empty the bundled country table is used.")
	fs.StringVar(&target_bucket_uri, "target-bucket-uri", "file:///", "A valid GoCloud blob URI where region GeoJSON files are written to.")

	return fs
}
