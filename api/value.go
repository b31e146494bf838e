package api

import "github.com/ilovepumpkin/dsa-historian/internal/value"

// valueView renders a value.Value as whichever JSON-native
// representation matches its tag, rather than exposing the internal
// struct shape over the wire.
func valueView(v value.Value) any {
	switch v.Type() {
	case value.Null:
		return nil
	case value.Bool:
		return v.Bool()
	case value.Number:
		return v.Number()
	case value.String:
		return v.StringVal()
	case value.Time:
		return v.Time()
	default:
		return v.Dynamic()
	}
}
