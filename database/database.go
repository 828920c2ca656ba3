// Package database opens the spatial database that buildings are loaded into and keeps its schema current.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	SourceOSM    string = "osm"
	SourceGoogle string = "google"
)

type DB struct {
	*sql.DB
	Dialect *Dialect
	uri     string
}

// PostgresURI returns a postgres:// URI for the given connection parameters.
func PostgresURI(name string, host string, port string, user string, password string) string {

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     fmt.Sprintf("%s:%s", host, port),
		Path:     "/" + name,
		RawQuery: "sslmode=disable",
	}

	return u.String()
}

// Open connects to uri, either postgres://... (or postgresql://...) or sqlite://<path>.
// Loads are sequential so the pool is limited to a single connection.
func Open(ctx context.Context, uri string) (*DB, error) {

	u, err := url.Parse(uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to parse database URI, %w", err)
	}

	var dialect *Dialect
	var dsn string

	switch u.Scheme {
	case "postgres", "postgresql":
		dialect = Postgres
		dsn = uri
	case "sqlite":
		dialect = SQLite
		dsn = strings.TrimPrefix(uri, "sqlite://")
	default:
		return nil, fmt.Errorf("Unsupported database scheme '%s'", u.Scheme)
	}

	conn, err := sql.Open(dialect.Driver, dsn)

	if err != nil {
		return nil, fmt.Errorf("Failed to open database, %w", err)
	}

	conn.SetMaxOpenConns(1)

	err = conn.PingContext(ctx)

	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("Failed to connect to database, %w", err)
	}

	db := &DB{
		DB:      conn,
		Dialect: dialect,
		uri:     uri,
	}

	return db, nil
}

type SourceCount struct {
	Source string
	Count  int64
}

// CountBySource returns the number of stored buildings per source, ordered by source.
func (db *DB) CountBySource(ctx context.Context) ([]SourceCount, error) {

	rows, err := db.QueryContext(ctx, "SELECT source, COUNT(*) FROM buildings GROUP BY source ORDER BY source")

	if err != nil {
		return nil, fmt.Errorf("Failed to count buildings, %w", err)
	}

	defer rows.Close()

	counts := make([]SourceCount, 0)

	for rows.Next() {

		var source sql.NullString
		var count int64

		err := rows.Scan(&source, &count)

		if err != nil {
			return nil, fmt.Errorf("Failed to scan count, %w", err)
		}

		counts = append(counts, SourceCount{Source: source.String, Count: count})
	}

	err = rows.Err()

	if err != nil {
		return nil, fmt.Errorf("Failed to iterate counts, %w", err)
	}

	return counts, nil
}
