package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteWriteAndQueryRoundTrip(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, "sensor1", value.NewNumber(1, 100), 100))
	require.NoError(t, db.Write(ctx, "sensor1", value.NewNumber(2, 200), 200))
	require.NoError(t, db.Write(ctx, "sensor1", value.NewNumber(3, 300), 300))

	var got []value.Value
	err := db.Query(ctx, "sensor1", 0, 1000, func(r Row) error {
		got = append(got, r.Value)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1.0, got[0].Number())
	assert.Equal(t, 2.0, got[1].Number())
	assert.Equal(t, 3.0, got[2].Number())
	assert.Equal(t, int64(100), got[0].Timestamp())
}

func TestSQLiteQueryRangeIsHalfOpen(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, "sensor1", value.NewNumber(1, 100), 100))
	require.NoError(t, db.Write(ctx, "sensor1", value.NewNumber(2, 200), 200))

	var got []int64
	err := db.Query(ctx, "sensor1", 100, 200, func(r Row) error {
		got = append(got, r.Value.Timestamp())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, got, "toMillis must be exclusive")
}

func TestSQLiteQueryFiltersByPath(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, "sensor1", value.NewNumber(1, 100), 100))
	require.NoError(t, db.Write(ctx, "sensor2", value.NewNumber(9, 100), 100))

	var got []float64
	err := db.Query(ctx, "sensor1", 0, 1000, func(r Row) error {
		got = append(got, r.Value.Number())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, got)
}

func TestSQLitePreservesEveryValueType(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	now := time.UnixMilli(123456).UTC()
	require.NoError(t, db.Write(ctx, "p", value.NewBool(true, 1), 1))
	require.NoError(t, db.Write(ctx, "p", value.NewNumber(2.5, 2), 2))
	require.NoError(t, db.Write(ctx, "p", value.NewString("hi", 3), 3))
	require.NoError(t, db.Write(ctx, "p", value.NewDynamic(map[string]any{"a": 1}, 4), 4))
	require.NoError(t, db.Write(ctx, "p", value.NewTime(now, 5), 5))

	var got []value.Value
	err := db.Query(ctx, "p", 0, 10, func(r Row) error {
		got = append(got, r.Value)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, value.Bool, got[0].Type())
	assert.True(t, got[0].Bool())
	assert.Equal(t, value.Number, got[1].Type())
	assert.Equal(t, value.String, got[2].Type())
	assert.Equal(t, "hi", got[2].StringVal())
	assert.Equal(t, value.Dynamic, got[3].Type())
	assert.Equal(t, map[string]any{"a": 1.0}, got[3].Dynamic(), "a structured dynamic payload must round-trip through JSON, not collapse to a Go-formatted string")
	assert.Equal(t, value.Time, got[4].Type())
	assert.True(t, now.Equal(got[4].Time()))
}

func TestSQLiteQueryHandlerErrorAbortsStream(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, "p", value.NewNumber(1, 1), 1))
	require.NoError(t, db.Write(ctx, "p", value.NewNumber(2, 2), 2))

	calls := 0
	err := db.Query(ctx, "p", 0, 10, func(r Row) error {
		calls++
		return assert.AnError
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
