package database

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	// Name is both the migrations directory and the URI scheme.
	Name string
	// Driver is the database/sql driver name.
	Driver      string
	placeholder func(n int) string
	geometry    func(p string) string
}

// Postgres is a PostGIS database, accessed with lib/pq.
var Postgres = &Dialect{
	Name:   "postgres",
	Driver: "postgres",
	placeholder: func(n int) string {
		return fmt.Sprintf("$%d", n)
	},
	geometry: func(p string) string {
		return fmt.Sprintf("ST_Multi(ST_GeomFromText(%s, 4326))", p)
	},
}

// SQLite stores geometries as WKT text. It is used for local runs and tests.
var SQLite = &Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	placeholder: func(n int) string {
		return "?"
	},
	geometry: func(p string) string {
		return p
	},
}

// columns bound per inserted row: geometry, source, external_id, confidence, area_m2
const insert_params int = 5

// InsertStatement returns a multi-row insert of rows buildings that silently drops rows
// violating a uniqueness constraint. Each row binds (geometry, source, external_id, confidence, area_m2).
func (d *Dialect) InsertStatement(rows int) string {

	values := make([]string, rows)
	n := 1

	for i := 0; i < rows; i++ {

		values[i] = fmt.Sprintf("(NULL, 'way', %s, %s, %s, %s, %s)",
			d.geometry(d.placeholder(n)),
			d.placeholder(n+1),
			d.placeholder(n+2),
			d.placeholder(n+3),
			d.placeholder(n+4),
		)

		n += insert_params
	}

	return fmt.Sprintf("INSERT INTO buildings (osm_id, osm_type, geometry, source, external_id, confidence, area_m2) VALUES %s ON CONFLICT DO NOTHING", strings.Join(values, ", "))
}
