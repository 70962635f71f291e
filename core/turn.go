package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/TreasureProject/voicecore/core/audio"
)

// TurnPhase is a turn's position in the listen-transcribe-respond-speak
// cycle.
type TurnPhase string

const (
	// PhaseListening means no turn is in flight; the orchestrator waits for
	// the next speech segment.
	PhaseListening TurnPhase = "listening"
	// PhaseAwaitingTranscript means the segment was handed to the transcriber.
	PhaseAwaitingTranscript TurnPhase = "awaiting_transcript"
	// PhaseAwaitingResponse means the transcript was handed to the responder.
	PhaseAwaitingResponse TurnPhase = "awaiting_response"
	// PhaseSpeaking means the reply is being synthesized and played.
	PhaseSpeaking TurnPhase = "speaking"
)

// Turn tracks one user utterance through the pipeline. At most one turn is
// in flight at any time.
type Turn struct {
	ID        string
	SegmentID string
	Phase     TurnPhase

	Transcript string
	Response   string

	StartedAt time.Time
}

func newTurn(segment audio.Segment) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		SegmentID: segment.ID,
		Phase:     PhaseAwaitingTranscript,
		StartedAt: time.Now(),
	}
}

// Exchange is one completed prompt and reply pair kept in conversation
// history.
type Exchange struct {
	Prompt string
	Reply  string
	At     time.Time
}

// OverlapPolicy decides what happens to a speech segment that arrives while
// a turn is already in flight.
type OverlapPolicy string

const (
	// OverlapDrop discards the overlapping segment. The default: barge-in
	// audio during the agent's own reply is usually echo or crosstalk.
	OverlapDrop OverlapPolicy = "drop"
	// OverlapBufferLatest keeps the most recent overlapping segment and
	// starts a turn for it once the current one finishes.
	OverlapBufferLatest OverlapPolicy = "buffer_latest"
)
