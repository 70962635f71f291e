package events

const (
	// KindSpeechAudioFrame identifies synthesized reply audio chunks.
	KindSpeechAudioFrame Kind = "speech_audio.frame"
	// KindSpeechAudioFinal identifies the end of a synthesized reply stream.
	KindSpeechAudioFinal Kind = "speech_audio.final"
	// KindPlaybackComplete identifies the end of reply playback.
	KindPlaybackComplete Kind = "playback_complete"
)

// SpeechAudioFrame carries one chunk of synthesized reply audio toward the
// playback sink. The chunk is owned by the event.
type SpeechAudioFrame struct {
	Base
	TurnID string
	Audio  []byte
}

// NewSpeechAudioFrame creates a synthesized audio chunk event, copying audio.
func NewSpeechAudioFrame(turnID string, audio []byte) SpeechAudioFrame {
	owned := make([]byte, len(audio))
	copy(owned, audio)
	return SpeechAudioFrame{Base: NewBase(KindSpeechAudioFrame), TurnID: turnID, Audio: owned}
}

// SpeechAudioFinal marks the end of the synthesized audio stream for a turn.
type SpeechAudioFinal struct {
	Base
	TurnID string
}

// NewSpeechAudioFinal creates an end-of-synthesis event.
func NewSpeechAudioFinal(turnID string) SpeechAudioFinal {
	return SpeechAudioFinal{Base: NewBase(KindSpeechAudioFinal), TurnID: turnID}
}

// PlaybackComplete reports that the playback sink finished playing a reply.
// Success is false when the output device failed or playback was abandoned.
type PlaybackComplete struct {
	Base
	TurnID  string
	Success bool
}

// NewPlaybackComplete creates a playback completion event.
func NewPlaybackComplete(turnID string, success bool) PlaybackComplete {
	return PlaybackComplete{Base: NewBase(KindPlaybackComplete), TurnID: turnID, Success: success}
}
