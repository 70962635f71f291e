package events

// KindResponseReady identifies generated reply text.
const KindResponseReady Kind = "response_ready"

// ResponseReady carries the reply generated for the current turn.
type ResponseReady struct {
	Base
	TurnID string
	Text   string
}

// NewResponseReady creates a generated reply event.
func NewResponseReady(turnID, text string) ResponseReady {
	return ResponseReady{Base: NewBase(KindResponseReady), TurnID: turnID, Text: text}
}
