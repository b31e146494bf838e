package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	t.Run("same-type-same-payload", func(t *testing.T) {
		assert.True(t, NewNumber(1, 100).Equal(NewNumber(1, 200)), "timestamp must not affect equality")
	})
	t.Run("same-type-different-payload", func(t *testing.T) {
		assert.False(t, NewNumber(1, 100).Equal(NewNumber(2, 100)))
	})
	t.Run("different-type", func(t *testing.T) {
		assert.False(t, NewNumber(0, 100).Equal(NewBool(false, 100)))
	})
	t.Run("null-equals-null", func(t *testing.T) {
		assert.True(t, NewNull(100).Equal(NewNull(200)))
	})
	t.Run("dynamic-compares-by-fmt", func(t *testing.T) {
		assert.True(t, NewDynamic(map[string]int{"a": 1}, 0).Equal(NewDynamic(map[string]int{"a": 1}, 0)))
	})
	t.Run("time-payload", func(t *testing.T) {
		now := time.Unix(0, 0)
		assert.True(t, NewTime(now, 0).Equal(NewTime(now, 0)))
	})
}

func TestWithTimestamp(t *testing.T) {
	v := NewString("hello", 100).WithTimestamp(200)
	assert.Equal(t, int64(200), v.Timestamp())
	assert.Equal(t, "hello", v.StringVal())
}

func TestChanged(t *testing.T) {
	t.Run("both-nil-is-unchanged", func(t *testing.T) {
		assert.False(t, Changed(nil, nil))
	})
	t.Run("never-observed-to-observed-is-changed", func(t *testing.T) {
		v := NewNumber(1, 0)
		assert.True(t, Changed(nil, &v))
	})
	t.Run("observed-to-never-observed-is-changed", func(t *testing.T) {
		v := NewNumber(1, 0)
		assert.True(t, Changed(&v, nil))
	})
	t.Run("null-then-null-is-unchanged", func(t *testing.T) {
		prev := NewNull(0)
		curr := NewNull(100)
		assert.False(t, Changed(&prev, &curr))
	})
	t.Run("value-then-null-is-changed", func(t *testing.T) {
		prev := NewNumber(1, 0)
		curr := NewNull(100)
		assert.True(t, Changed(&prev, &curr))
	})
	t.Run("null-then-value-is-changed", func(t *testing.T) {
		prev := NewNull(0)
		curr := NewNumber(1, 100)
		assert.True(t, Changed(&prev, &curr))
	})
	t.Run("equal-values-is-unchanged", func(t *testing.T) {
		prev := NewNumber(1, 0)
		curr := NewNumber(1, 100)
		assert.False(t, Changed(&prev, &curr))
	})
	t.Run("different-values-is-changed", func(t *testing.T) {
		prev := NewNumber(1, 0)
		curr := NewNumber(2, 100)
		assert.True(t, Changed(&prev, &curr))
	})
}
