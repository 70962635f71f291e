package events

// KindTranscriptReady identifies completed transcriptions.
const KindTranscriptReady Kind = "transcript_ready"

// TranscriptReady carries the text produced for a speech segment.
type TranscriptReady struct {
	Base
	// SegmentID ties the transcript back to the segment it was produced from.
	SegmentID string
	Text      string
}

// NewTranscriptReady creates a completed transcription event.
func NewTranscriptReady(segmentID, text string) TranscriptReady {
	return TranscriptReady{Base: NewBase(KindTranscriptReady), SegmentID: segmentID, Text: text}
}
