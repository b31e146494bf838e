// Package value defines the tagged-variant Value carried by every
// subscription update flowing through the historian, along with the
// envelopes (SubscriptionUpdate, WatchUpdate) that wrap it on its way
// from the bus into a WatchGroup's queue.
package value

import (
	"fmt"
	"time"
)

// Type tags the kind of payload a Value carries.
type Type uint8

const (
	Null Type = iota
	Bool
	Number
	String
	Dynamic
	Time
)

func (t Type) String() string {
	switch t {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Dynamic:
		return "dynamic"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Value is an immutable record carrying exactly one payload for its
// tag, plus the epoch-millisecond timestamp the bus observed it at.
//
// Equality is structural: two Values are Equal iff their tags and
// payloads match. A Null value is never equal to a present value of
// any type, including another Value whose payload happens to be the
// zero value for its type.
type Value struct {
	typ       Type
	boolVal   bool
	numberVal float64
	stringVal string
	dynamic   any
	timeVal   time.Time
	timestamp int64
}

// NewNull builds a Null Value stamped at timestampMs.
func NewNull(timestampMs int64) Value {
	return Value{typ: Null, timestamp: timestampMs}
}

// NewBool builds a Bool Value.
func NewBool(v bool, timestampMs int64) Value {
	return Value{typ: Bool, boolVal: v, timestamp: timestampMs}
}

// NewNumber builds a Number Value.
func NewNumber(v float64, timestampMs int64) Value {
	return Value{typ: Number, numberVal: v, timestamp: timestampMs}
}

// NewString builds a String Value.
func NewString(v string, timestampMs int64) Value {
	return Value{typ: String, stringVal: v, timestamp: timestampMs}
}

// NewDynamic builds a Value wrapping an arbitrary structured payload,
// e.g. a decoded JSON object from the bus.
func NewDynamic(v any, timestampMs int64) Value {
	return Value{typ: Dynamic, dynamic: v, timestamp: timestampMs}
}

// NewTime builds a Value carrying a point in time as its payload.
func NewTime(v time.Time, timestampMs int64) Value {
	return Value{typ: Time, timeVal: v, timestamp: timestampMs}
}

func (v Value) Type() Type       { return v.typ }
func (v Value) IsNull() bool     { return v.typ == Null }
func (v Value) Timestamp() int64 { return v.timestamp }
func (v Value) Bool() bool       { return v.boolVal }
func (v Value) Number() float64  { return v.numberVal }
func (v Value) Dynamic() any     { return v.dynamic }
func (v Value) Time() time.Time  { return v.timeVal }

// StringVal returns the payload of a String-typed Value. Named
// StringVal rather than String to avoid accidentally satisfying
// fmt.Stringer: a Value that isn't String-typed has no meaningful
// string form, and %v/zap would otherwise silently render it as "".
func (v Value) StringVal() string { return v.stringVal }

// WithTimestamp returns a copy of v stamped with a new timestamp,
// leaving the payload untouched. Used when a row's persisted time
// diverges from the value's own observed time (interval sampling).
func (v Value) WithTimestamp(timestampMs int64) Value {
	v.timestamp = timestampMs
	return v
}

// Equal implements the structural equality the POINT_CHANGE policy
// relies on to detect a change in value.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Null:
		return true
	case Bool:
		return v.boolVal == o.boolVal
	case Number:
		return v.numberVal == o.numberVal
	case String:
		return v.stringVal == o.stringVal
	case Time:
		return v.timeVal.Equal(o.timeVal)
	case Dynamic:
		return fmt.Sprint(v.dynamic) == fmt.Sprint(o.dynamic)
	default:
		return false
	}
}

// Changed implements the change predicate from §4.A: either exactly
// one of prev/curr is null, or neither is null and they are
// structurally unequal. prev/curr are pointers so the "not yet
// observed" state (no prior value at all) can be distinguished from
// an observed Null value; pass nil for "never observed."
func Changed(prev, curr *Value) bool {
	if prev == nil && curr == nil {
		return false
	}
	if prev == nil || curr == nil {
		return true
	}
	if prev.IsNull() != curr.IsNull() {
		return true
	}
	if prev.IsNull() && curr.IsNull() {
		return false
	}
	return !prev.Equal(*curr)
}
