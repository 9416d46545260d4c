package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/ampdash/pkg/models"
	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	// fixed width so that text ordering matches time ordering
	timeLayout = "2006-01-02 15:04:05.000000000"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite serializes writers anyway
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sensor_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		power_w REAL NOT NULL DEFAULT 0,
		current_a REAL NOT NULL DEFAULT 0,
		voltage_v REAL NOT NULL DEFAULT 0,
		energy_kwh REAL NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(time)
	);
	CREATE INDEX IF NOT EXISTS idx_readings_date ON sensor_readings(date);
	CREATE INDEX IF NOT EXISTS idx_readings_time ON sensor_readings(time);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertReading inserts a reading, ignoring duplicates of the same timestamp.
// It reports whether a row was written.
func (db *DB) InsertReading(ctx context.Context, r models.Reading, source string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, insertQuery, insertArgs(r, source)...)
	if err != nil {
		return false, fmt.Errorf("inserting reading: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertReadings stores readings in one transaction and returns how many were new
func (db *DB) InsertReadings(ctx context.Context, readings []models.Reading, source string) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range readings {
		res, err := stmt.ExecContext(ctx, insertArgs(r, source)...)
		if err != nil {
			return 0, fmt.Errorf("inserting reading at %s: %w", r.Time.Format(time.RFC3339), err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing readings: %w", err)
	}
	return inserted, nil
}

const insertQuery = `
	INSERT OR IGNORE INTO sensor_readings (date, time, power_w, current_a, voltage_v, energy_kwh, source, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

func insertArgs(r models.Reading, source string) []any {
	t := r.Time.UTC()
	return []any{
		t.Format(dateLayout),
		t.Format(timeLayout),
		r.Power,
		r.Current,
		r.Voltage,
		r.Energy,
		source,
		time.Now().UTC().Format(time.RFC3339),
	}
}

// Readings returns the readings of day, or every reading when day is nil,
// ordered by time.
func (db *DB) Readings(ctx context.Context, day *time.Time) ([]models.Reading, error) {
	if day == nil {
		return db.listReadings(ctx, `SELECT time, power_w, current_a, voltage_v, energy_kwh FROM sensor_readings ORDER BY time ASC`)
	}
	return db.listReadings(ctx, `
	SELECT time, power_w, current_a, voltage_v, energy_kwh
	FROM sensor_readings
	WHERE date = ?
	ORDER BY time ASC
	`, day.UTC().Format(dateLayout))
}

// ReadingsBetween returns readings in [start, stop), ordered by time
func (db *DB) ReadingsBetween(ctx context.Context, start, stop time.Time) ([]models.Reading, error) {
	return db.listReadings(ctx, `
	SELECT time, power_w, current_a, voltage_v, energy_kwh
	FROM sensor_readings
	WHERE time >= ? AND time < ?
	ORDER BY time ASC
	`, start.UTC().Format(timeLayout), stop.UTC().Format(timeLayout))
}

func (db *DB) listReadings(ctx context.Context, query string, args ...any) ([]models.Reading, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	results := []models.Reading{}
	for rows.Next() {
		var r models.Reading
		var timeStr string
		if err := rows.Scan(&timeStr, &r.Power, &r.Current, &r.Voltage, &r.Energy); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		r.Time, err = time.Parse(timeLayout, timeStr)
		if err != nil {
			return nil, fmt.Errorf("parsing time: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// AvailableDates returns every day with at least one reading, ascending
func (db *DB) AvailableDates(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT date FROM sensor_readings ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying dates: %w", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

var fieldValues = map[string]func(models.Reading) float64{
	"power":   func(r models.Reading) float64 { return r.Power },
	"current": func(r models.Reading) float64 { return r.Current },
	"voltage": func(r models.Reading) float64 { return r.Voltage },
	"energy":  func(r models.Reading) float64 { return r.Energy },
}

// Field returns the values of a single field, ordered by time
func (db *DB) Field(ctx context.Context, field string) ([]models.FieldValue, error) {
	value, ok := fieldValues[field]
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", field)
	}

	readings, err := db.Readings(ctx, nil)
	if err != nil {
		return nil, err
	}

	out := make([]models.FieldValue, 0, len(readings))
	for _, r := range readings {
		out = append(out, models.FieldValue{Time: r.Time, Field: field, Value: value(r)})
	}
	return out, nil
}

// Count returns the number of stored readings
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return n, nil
}
