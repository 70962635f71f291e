package events

import "github.com/TreasureProject/voicecore/core/audio"

// KindAudioFrameCaptured identifies fixed-size capture windows from the input device.
const KindAudioFrameCaptured Kind = "audio.frame_captured"

// AudioFrameCaptured carries one capture window toward the voice activity
// detector.
type AudioFrameCaptured struct {
	Base
	Frame audio.Frame
}

// NewAudioFrameCaptured creates a capture window event.
func NewAudioFrameCaptured(frame audio.Frame) AudioFrameCaptured {
	return AudioFrameCaptured{Base: NewBase(KindAudioFrameCaptured), Frame: frame}
}
