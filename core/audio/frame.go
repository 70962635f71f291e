package audio

import (
	"encoding/binary"
	"time"
)

// Frame is one fixed-size window of captured audio. The PCM slice is owned by
// the frame once constructed; producers hand frames off and must not mutate
// the data afterwards.
type Frame struct {
	// PCM is raw little-endian linear16 audio, one channel.
	PCM []byte

	Encoding EncodingInfo
	Captured time.Time
}

// NewFrame copies pcm into a frame stamped with the capture time.
func NewFrame(pcm []byte, encoding EncodingInfo, captured time.Time) Frame {
	owned := make([]byte, len(pcm))
	copy(owned, pcm)
	return Frame{PCM: owned, Encoding: encoding, Captured: captured}
}

// Duration is the play time covered by the frame.
func (f Frame) Duration() time.Duration {
	return f.Encoding.Duration(len(f.PCM))
}

// Samples decodes the frame's PCM into signed 16-bit amplitudes.
func (f Frame) Samples() []int16 {
	return DecodePCM16(f.PCM)
}

// DecodePCM16 interprets raw bytes as little-endian int16 samples. A trailing
// odd byte is ignored.
func DecodePCM16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}

// EncodePCM16 packs int16 samples back into little-endian bytes.
func EncodePCM16(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
	}
	return pcm
}
