package bus

import "time"

// Event carries a domain notification between components.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
