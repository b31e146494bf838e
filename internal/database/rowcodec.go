package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ilovepumpkin/dsa-historian/internal/value"
)

// rowToValue reconstructs a value.Value from the column set both
// backends share, given the stored type tag.
func rowToValue(typ value.Type, boolVal sql.NullBool, numberVal sql.NullFloat64, stringVal sql.NullString, timeMs int64) value.Value {
	switch typ {
	case value.Bool:
		return value.NewBool(boolVal.Bool, timeMs)
	case value.Number:
		return value.NewNumber(numberVal.Float64, timeMs)
	case value.String:
		return value.NewString(stringVal.String, timeMs)
	case value.Dynamic:
		return value.NewDynamic(decodeDynamic(stringVal.String), timeMs)
	case value.Time:
		return value.NewTime(msToTime(int64(numberVal.Float64)), timeMs)
	default:
		return value.NewNull(timeMs)
	}
}

// encodeDynamic serializes a Dynamic payload to its stored JSON form,
// preserving structure (maps, slices, nested values) across the
// write/read round trip rather than collapsing it to a Go %v string.
func encodeDynamic(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		zap.S().Errorw("database: failed to marshal dynamic value, storing null", "error", err)
		return "null"
	}
	return string(b)
}

// decodeDynamic is encodeDynamic's inverse, used when reconstructing a
// row's Value from storage.
func decodeDynamic(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		zap.S().Errorw("database: failed to unmarshal dynamic value", "error", err, "raw", raw)
		return nil
	}
	return v
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
