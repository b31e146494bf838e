package watchgroup

import "fmt"

// LoggingType selects how a WatchGroup decides whether an observed
// update gets persisted.
type LoggingType int

const (
	// AllData writes every non-null update unconditionally.
	AllData LoggingType = iota
	// Interval never writes directly from write(); a periodic sampler
	// enqueues the latest pending update per watch instead.
	Interval
	// PointChange writes only when the observed value differs from
	// the watch's last observed value.
	PointChange
)

func (t LoggingType) String() string {
	switch t {
	case AllData:
		return "ALL_DATA"
	case Interval:
		return "INTERVAL"
	case PointChange:
		return "POINT_CHANGE"
	default:
		return fmt.Sprintf("LoggingType(%d)", int(t))
	}
}

// ParseLoggingType maps the roConfig "lt" string onto a LoggingType,
// falling back to AllData for an unrecognized or empty name per §6's
// default-fallback rule.
func ParseLoggingType(name string) LoggingType {
	switch name {
	case "INTERVAL":
		return Interval
	case "POINT_CHANGE":
		return PointChange
	default:
		return AllData
	}
}

// Settings is the immutable policy snapshot a WatchGroup swaps
// atomically under its mutex. Scheduled tasks capture the snapshot in
// effect when they start a tick, so an edit mid-tick never produces a
// tick that mixes old and new parameters.
type Settings struct {
	LoggingType        LoggingType
	IntervalSeconds    int64
	BufferFlushSeconds int64
}

// DefaultSettings matches the roConfig fallbacks of §6: 5s buffer
// flush, ALL_DATA logging, 5s interval.
func DefaultSettings() Settings {
	return Settings{
		LoggingType:        AllData,
		IntervalSeconds:    5,
		BufferFlushSeconds: 5,
	}
}

// clampNonNegative implements §4.D's negative-input rule: a negative
// seconds value clamps to 0 rather than being rejected.
func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// Normalize returns a copy of s with both seconds fields clamped to
// non-negative, per §4.D. Always clamps the incoming parameter, never
// a stale field — see the editSettings bug noted and deliberately not
// reproduced in DESIGN.md.
func (s Settings) Normalize() Settings {
	s.IntervalSeconds = clampNonNegative(s.IntervalSeconds)
	s.BufferFlushSeconds = clampNonNegative(s.BufferFlushSeconds)
	return s
}

// BuffersEnabled reports whether bufferFlushSeconds > 0.
func (s Settings) BuffersEnabled() bool { return s.BufferFlushSeconds > 0 }

// SamplingEnabled reports whether an interval sampler tick should run.
// intervalSeconds == 0 after clamping disables the sampler outright —
// time.NewTicker panics on a non-positive duration, and "tick as fast
// as possible" has no sane meaning for a wall-clock sampler, so the
// ambiguity in the clamp (§9) is resolved as "disabled".
func (s Settings) SamplingEnabled() bool {
	return s.LoggingType == Interval && s.IntervalSeconds > 0
}

// CanWriteOnNewData implements watch.Group's policy gate: every mode
// except INTERVAL may write as soon as new data arrives.
func (s Settings) CanWriteOnNewData() bool { return s.LoggingType != Interval }
