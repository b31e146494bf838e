package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

// SQLite is a Database backed by modernc.org/sqlite's pure-Go driver,
// useful for local development and tests where a Postgres server
// isn't available. Schema mirrors Postgres's historian_values table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database file at path
// and ensures the historian_values table exists.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("database: open sqlite: %w", err)
	}
	// modernc.org/sqlite serializes writes internally; a single
	// connection avoids SQLITE_BUSY under concurrent flush tickers.
	db.SetMaxOpenConns(1)

	const schema = `
		CREATE TABLE IF NOT EXISTS historian_values (
			path       TEXT    NOT NULL,
			type       INTEGER NOT NULL,
			bool_val   INTEGER,
			number_val REAL,
			string_val TEXT,
			time_ms    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_historian_values_path_time
			ON historian_values (path, time_ms);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Write(ctx context.Context, path string, v value.Value, timeMillis int64) error {
	var boolVal sql.NullBool
	var numberVal sql.NullFloat64
	var stringVal sql.NullString

	switch v.Type() {
	case value.Bool:
		boolVal = sql.NullBool{Bool: v.Bool(), Valid: true}
	case value.Number:
		numberVal = sql.NullFloat64{Float64: v.Number(), Valid: true}
	case value.String:
		stringVal = sql.NullString{String: v.StringVal(), Valid: true}
	case value.Dynamic:
		stringVal = sql.NullString{String: encodeDynamic(v.Dynamic()), Valid: true}
	case value.Time:
		numberVal = sql.NullFloat64{Float64: float64(v.Time().UnixMilli()), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO historian_values (path, type, bool_val, number_val, string_val, time_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		path, int(v.Type()), boolVal, numberVal, stringVal, timeMillis,
	)
	return err
}

func (s *SQLite) Query(ctx context.Context, path string, fromMillis, toMillis int64, handler RowHandler) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, bool_val, number_val, string_val, time_ms
		 FROM historian_values
		 WHERE path = ? AND time_ms >= ? AND time_ms < ?
		 ORDER BY time_ms ASC`,
		path, fromMillis, toMillis,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var typ int
		var boolVal sql.NullBool
		var numberVal sql.NullFloat64
		var stringVal sql.NullString
		var timeMs int64
		if err := rows.Scan(&typ, &boolVal, &numberVal, &stringVal, &timeMs); err != nil {
			return err
		}
		v := rowToValue(value.Type(typ), boolVal, numberVal, stringVal, timeMs)
		if err := handler(Row{Value: v, Time: msToTime(timeMs)}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
