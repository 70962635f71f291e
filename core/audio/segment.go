package audio

import (
	"time"

	"github.com/google/uuid"
)

// Segment is one continuous span of detected speech, bounded by silence on
// both sides (or cut off by the max-utterance cap). The PCM is owned by the
// segment.
type Segment struct {
	ID       string
	PCM      []byte
	Encoding EncodingInfo
	Start    time.Time
}

// NewSegment copies pcm into a freshly identified segment.
func NewSegment(pcm []byte, encoding EncodingInfo, start time.Time) Segment {
	owned := make([]byte, len(pcm))
	copy(owned, pcm)
	return Segment{
		ID:       uuid.NewString(),
		PCM:      owned,
		Encoding: encoding,
		Start:    start,
	}
}

// Duration is the play time covered by the buffered utterance.
func (s Segment) Duration() time.Duration {
	return s.Encoding.Duration(len(s.PCM))
}
