package models

// Event types pushed to live clients.
const (
	EventState      = "state"
	EventStatus     = "status"
	EventAssessment = "assessment"
	EventAlert      = "alert"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Publisher receives events from the streaming loop and the alert dispatcher.
// Implementations must not block.
type Publisher interface {
	Publish(event Event)
}

type PublisherFunc func(event Event)

func (f PublisherFunc) Publish(event Event) { f(event) }

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
