// Package events defines the typed event contract shared by all agent
// modules over the event bus.
//
// Event kinds double as bus topics. The pipeline topics are:
//
//   - audio.frame_captured: one fixed-size capture window from the input
//     device, published by the frame source and consumed by the voice
//     activity detector.
//   - speech_segment_ready: a complete buffered utterance, published by the
//     detector once trailing silence (or the max-utterance cap) finalizes a
//     recording.
//   - transcript_ready: the text for a segment, published once the
//     transcriber returns.
//   - response_ready: generated reply text for the current turn.
//   - speech_audio.frame / speech_audio.final: synthesized reply audio
//     streamed toward the playback sink, and its end-of-stream marker.
//   - playback_complete: the playback sink finished (or abandoned) playing a
//     reply.
//
// Payloads are value-like snapshots: every slice they carry is owned by the
// event and never aliases a module's internal buffers.
package events
