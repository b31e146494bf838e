package value

// SubscriptionUpdate is what the bus delivers for a path: the decoded
// path, the Value observed, and whatever transport metadata (QoS,
// MQTT packet ID, retained flag, ...) the bus adapter chose to carry
// through. Historian logic never inspects Meta; it exists purely so a
// Database or real-time handler that cares about transport details can
// get at them.
type SubscriptionUpdate struct {
	Path  string
	Value Value
	Meta  map[string]string
}
