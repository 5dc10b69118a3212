package terminal

// EventType tags an Event.
type EventType string

const (
	EventOutput EventType = "output"
	EventStatus EventType = "status"
)

// EndedBanner is appended to the output of every session that reaches a
// terminal state so viewers see a definite end.
const EndedBanner = "\r\n[Session ended]\r\n"

// Event is one item of a session's stream: terminal output or a change of
// the alive flag. Its JSON form is the frame payload sent to viewers.
type Event struct {
	Type  EventType `json:"type"`
	Text  string    `json:"text,omitempty"`
	Alive *bool     `json:"alive,omitempty"`
}

// OutputEvent wraps a chunk of terminal output.
func OutputEvent(text string) Event {
	return Event{Type: EventOutput, Text: text}
}

// StatusEvent reports whether the session is alive.
func StatusEvent(alive bool) Event {
	return Event{Type: EventStatus, Alive: &alive}
}

// IsAlive reports the alive flag of a status event.
func (e Event) IsAlive() bool {
	return e.Alive != nil && *e.Alive
}
