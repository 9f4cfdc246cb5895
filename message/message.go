// Package message defines what travels between a caller and the transport.
//
// A Payload goes out with every request; Events come back, in the order the
// transport received them, on the channel of the stream the request opened.
package message

import "fmt"

// Payload carries the data for a single request.
//
//   - Metadata: the encoded route ([len][utf8 route])
//   - Data:     the request body, JSON text or raw bytes
type Payload struct {
	Metadata []byte
	Data     []byte
}

// EventKind distinguishes the three things a stream can report.
type EventKind uint8

const (
	EventNext     EventKind = iota + 1 // A reply value; Data is set
	EventComplete                      // The responder finished; no more events follow
	EventError                         // The stream failed; Err is set, no more events follow
)

func (k EventKind) String() string {
	switch k {
	case EventNext:
		return "next"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is one reply-side occurrence on a stream.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Terminal reports whether nothing can follow this event on its stream.
func (e Event) Terminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}
