// Package bus defines the contract a DSA link bus adapter must satisfy
// and a concrete implementation over MQTT. The wire protocol of the
// actual DSA bus is out of scope for this historian (§1); MQTT stands
// in as the pub/sub transport the SubscriptionPool drives.
package bus

import "github.com/ilovepumpkin/dsa-historian/internal/value"

// Handler receives every SubscriptionUpdate the bus delivers for a
// path a caller has subscribed to.
type Handler func(value.SubscriptionUpdate)

// Bus is the minimal contract the SubscriptionPool needs from the
// underlying transport: subscribe a path to a handler, unsubscribe it
// again once no Watch cares anymore.
type Bus interface {
	// Subscribe starts delivering updates for path to handler. It is
	// only ever called once per path by the pool (the pool itself
	// fans a single bus subscription out to many Watches).
	Subscribe(path string, handler Handler) error

	// Unsubscribe stops delivering updates for path. Called once the
	// last Watch interested in path has gone away.
	Unsubscribe(path string) error

	// Connected reports whether the bus currently has a live
	// connection, used by the health check.
	Connected() bool
}
