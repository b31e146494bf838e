package watch

import "github.com/ilovepumpkin/dsa-historian/internal/value"

// WatchUpdate pairs an observed update with the Watch it arrived on.
// INTERVAL-mode groups hold onto the latest one per watch between
// sampler ticks; ALL_DATA and POINT_CHANGE groups build one inline and
// immediately enqueue it (buffering on) or write it (buffering off).
type WatchUpdate struct {
	Watch  *Watch
	Update value.SubscriptionUpdate
}
