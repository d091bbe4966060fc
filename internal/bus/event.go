package bus

import "time"

// Event is a domain event published on the bus. Kind is a dotted name
// whose prefix is the namespace: "push." for normalized push-channel
// events, "inbox." for controller state changes, "channel." for
// connection lifecycle.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
