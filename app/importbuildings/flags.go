package importbuildings

import (
	"flag"
	"os"
	"time"

	"github.com/sfomuseum/go-flags/flagset"
	"github.com/whosonfirst/go-openbuildings/cells"
	"github.com/whosonfirst/go-openbuildings/database"
	"github.com/whosonfirst/go-openbuildings/loader"
	"github.com/whosonfirst/go-openbuildings/shards"
)

var country string
var countries_uri string
var list_countries bool

var database_uri string
var scratch_bucket_uri string
var source_uri string

var timeout time.Duration
var retries int
var refresh bool

var batch_size int
var s2_level int
var max_cells int

var dry_run bool
var keep_files bool

var pushgateway_uri string

func DefaultFlagSet() *flag.FlagSet {

	fs := flagset.NewFlagSet("import-buildings")

	fs.StringVar(&country, "country", envOr("COUNTRY_CODE", "UGA"), "The ISO 3166-1 alpha-3 code (or name) of the country to import. Defaults to the COUNTRY_CODE environment variable.")
	fs.StringVar(&countries_uri, "countries-uri", "", "A valid GoCloud blob URI for a JSON document of country definitions. If empty the bundled country table is used.")
	fs.BoolVar(&list_countries, "list-countries", false, "List the supported countries and exit.")

	default_db := database.PostgresURI(
		envOr("DB_NAME", "community_address"),
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER", "postgres"),
		envOr("DB_PASSWORD", "postgres"),
	)

	fs.StringVar(&database_uri, "database-uri", default_db, "A postgres:// or sqlite:// URI for the buildings database. Defaults to a URI derived from the DB_NAME, DB_HOST, DB_PORT, DB_USER and DB_PASSWORD environment variables.")
	fs.StringVar(&scratch_bucket_uri, "scratch-bucket-uri", "", "A valid GoCloud blob URI where shards are downloaded to. If empty a google_buildings/{country} directory in the system temporary directory is used.")
	fs.StringVar(&source_uri, "source-uri", shards.DefaultSourceURI, "The base URI of the Open Buildings shards.")

	fs.DurationVar(&timeout, "timeout", shards.DefaultTimeout, "The timeout for each shard download.")
	fs.IntVar(&retries, "retries", shards.DefaultRetries, "The number of times to retry a failed shard download.")
	fs.BoolVar(&refresh, "refresh", false, "Download shards even if they are already present in the scratch bucket.")

	fs.IntVar(&batch_size, "batch-size", loader.DefaultBatchSize, "The number of records committed per transaction.")
	fs.IntVar(&s2_level, "s2-level", cells.DefaultLevel, "The S2 level of the shards.")
	fs.IntVar(&max_cells, "max-cells", cells.DefaultMaxCells, "The maximum number of cells a country may cover.")

	fs.BoolVar(&dry_run, "dry-run", false, "Download shards but do not import them.")
	fs.BoolVar(&keep_files, "keep-files", false, "Keep downloaded shards after the import.")

	fs.StringVar(&pushgateway_uri, "pushgateway-uri", "", "The URI of a Prometheus Pushgateway to push run metrics to.")

	return fs
}

func envOr(key string, fallback string) string {

	v, ok := os.LookupEnv(key)

	if !ok || v == "" {
		return fallback
	}

	return v
}
