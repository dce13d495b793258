// Package recorder stores exchanged values as a time series in SQL.
//
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx through database/sql) are
// supported. Locations are either a file path, sqlite://path or a
// postgres:// DSN.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"
)

// Direction tells whether a value went into or came out of the engine.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Sample is one exchanged value in caller units.
type Sample struct {
	Time      float64
	Building  string
	Instance  string
	Variable  string
	Unit      string
	Direction Direction
	Value     float64
}

// Point is one entry of a series.
type Point struct {
	Time  float64
	Value float64
}

// Recorder appends samples of one run.
type Recorder struct {
	db     *sql.DB
	driver string
	run    string
	mu     sync.Mutex
}

var sqlOpen = sql.Open

// Open connects to location and prepares the samples table.
func Open(ctx context.Context, location, run string) (*Recorder, error) {
	driver, dsn, err := parseLocation(location)
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS samples (
		run TEXT NOT NULL,
		time DOUBLE PRECISION NOT NULL,
		building TEXT NOT NULL,
		instance TEXT NOT NULL,
		variable TEXT NOT NULL,
		unit TEXT NOT NULL,
		direction TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create samples table: %w", err)
	}
	return &Recorder{db: db, driver: driver, run: run}, nil
}

func parseLocation(location string) (driver, dsn string, err error) {
	switch {
	case location == "":
		return "", "", fmt.Errorf("empty recorder location")
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return driverPostgres, location, nil
	case strings.HasPrefix(location, "sqlite://"):
		return driverSQLite, strings.TrimPrefix(location, "sqlite://"), nil
	case strings.Contains(location, "://"):
		return "", "", fmt.Errorf("unsupported recorder location %q", location)
	default:
		return driverSQLite, location, nil
	}
}

// Run returns the run identifier samples are stored under.
func (r *Recorder) Run() string { return r.run }

// Record appends samples in one transaction.
func (r *Recorder) Record(ctx context.Context, samples ...Sample) (retErr error) {
	if len(samples) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples
		(run, time, building, instance, variable, unit, direction, value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, r.run, s.Time, s.Building, s.Instance, s.Variable, s.Unit, string(s.Direction), s.Value); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Series returns the values of one variable of one instance ordered by time.
func (r *Recorder) Series(ctx context.Context, instance, variable string) ([]Point, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT time, value FROM samples
		WHERE run = $1 AND instance = $2 AND variable = $3
		ORDER BY time`, r.run, instance, variable)
	if err != nil {
		return nil, fmt.Errorf("select series: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var pts []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Time, &p.Value); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// Count returns the number of samples of the run.
func (r *Recorder) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples WHERE run = $1`, r.run).Scan(&n)
	return n, err
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
