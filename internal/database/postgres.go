package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/omeid/pgerror"
	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

// Postgres is a Database backed by a single append-only table. Schema:
//
//	CREATE TABLE historian_values (
//	    path       text        NOT NULL,
//	    type       smallint    NOT NULL,
//	    bool_val   boolean,
//	    number_val double precision,
//	    string_val text,
//	    time_ms    bigint      NOT NULL
//	);
//	CREATE INDEX ON historian_values (path, time_ms);
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool against dsn and verifies
// connectivity. The caller owns calling Close at shutdown.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Write(ctx context.Context, path string, v value.Value, timeMillis int64) error {
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

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO historian_values (path, type, bool_val, number_val, string_val, time_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		path, int(v.Type()), boolVal, numberVal, stringVal, timeMillis,
	)
	if err != nil {
		return classifyPqError(err)
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, path string, fromMillis, toMillis int64, handler RowHandler) error {
	rows, err := p.db.QueryContext(ctx,
		`SELECT type, bool_val, number_val, string_val, time_ms
		 FROM historian_values
		 WHERE path = $1 AND time_ms >= $2 AND time_ms < $3
		 ORDER BY time_ms ASC`,
		path, fromMillis, toMillis,
	)
	if err != nil {
		return classifyPqError(err)
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

func (p *Postgres) Close() error {
	return p.db.Close()
}

// classifyPqError distinguishes constraint/connection failures that a
// caller might retry on from opaque errors, logging either way so a
// dropped write leaves a trace as required by §7's transient-I/O
// policy.
func classifyPqError(err error) error {
	if pgErr := pgerror.NotNullViolation(err); pgErr != nil {
		zap.S().Warnw("database: postgres constraint violation", "constraint", pgErr.Constraint, "error", pgErr)
		return err
	}
	if pgErr := pgerror.UniqueViolation(err); pgErr != nil {
		zap.S().Warnw("database: postgres constraint violation", "constraint", pgErr.Constraint, "error", pgErr)
		return err
	}
	if pgErr, ok := err.(*pq.Error); ok {
		zap.S().Errorw("database: postgres error", "code", pgErr.Code, "error", pgErr)
		return err
	}
	zap.S().Errorw("database: postgres write failed", "error", err)
	return err
}
