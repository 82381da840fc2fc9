package types

import "strconv"

// Attributes added to events when they are published after commit.
const (
	EventAttrHeight = "height"
	EventAttrTx     = "tx"
)

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Committed returns a copy of e tagged with the block height and transaction
// that produced it. Receipt events are left untouched.
func (e Event) Committed(height uint64, tx string) Event {
	attrs := make(map[string]string, len(e.Attributes)+2)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[EventAttrHeight] = strconv.FormatUint(height, 10)
	attrs[EventAttrTx] = tx
	return Event{Type: e.Type, Attributes: attrs}
}
