package events

import "github.com/TreasureProject/voicecore/core/audio"

// KindSpeechSegmentReady identifies finalized utterance buffers.
const KindSpeechSegmentReady Kind = "speech_segment_ready"

// SpeechSegmentReady carries one complete buffered utterance from the
// detector to the orchestrator.
type SpeechSegmentReady struct {
	Base
	Segment audio.Segment
}

// NewSpeechSegmentReady creates a finalized utterance event.
func NewSpeechSegmentReady(segment audio.Segment) SpeechSegmentReady {
	return SpeechSegmentReady{Base: NewBase(KindSpeechSegmentReady), Segment: segment}
}
