// Package texttospeech defines shared configuration for speech synthesis
// providers.
package texttospeech

import "github.com/TreasureProject/voicecore/core/audio"

type TextToSpeechOptions struct {
	// Voice is the provider-specific voice model name.
	Voice string

	EncodingInfo audio.EncodingInfo
}

type TextToSpeechOption func(*TextToSpeechOptions)

// WithVoice selects the synthesis voice.
func WithVoice(voice string) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if voice != "" {
			o.Voice = voice
		}
	}
}

// WithEncodingInfo selects the output audio encoding. It should match the
// playback device the audio is headed for.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
