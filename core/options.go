package agent

import (
	"time"

	"github.com/TreasureProject/voicecore/core/vad"
)

type agentOptions struct {
	capture  CaptureClient
	playback PlaybackClient

	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer

	frameDuration   time.Duration
	detectorOptions []vad.DetectorOption

	overlapPolicy       OverlapPolicy
	collaboratorTimeout time.Duration
	maxHistory          int

	callbacks         turnCallbacks
	supervisorOptions []SupervisorOption
	extraModules      []Module
}

type Option func(*agentOptions)

// WithCaptureClient wires an input device. Without one, no frames are
// produced internally; callers can still publish capture events on the bus
// themselves.
func WithCaptureClient(client CaptureClient) Option {
	return func(o *agentOptions) { o.capture = client }
}

// WithPlaybackClient wires an output device for synthesized replies.
func WithPlaybackClient(client PlaybackClient) Option {
	return func(o *agentOptions) { o.playback = client }
}

// WithTranscriber wires the speech-to-text collaborator. Without one,
// detected segments are logged and dropped.
func WithTranscriber(transcriber Transcriber) Option {
	return func(o *agentOptions) { o.transcriber = transcriber }
}

// WithResponder wires the reply-generating collaborator.
func WithResponder(responder Responder) Option {
	return func(o *agentOptions) { o.responder = responder }
}

// WithSynthesizer wires the text-to-speech collaborator.
func WithSynthesizer(synthesizer Synthesizer) Option {
	return func(o *agentOptions) { o.synthesizer = synthesizer }
}

// WithFrameDuration sets the fixed analysis window size frames are cut to.
func WithFrameDuration(duration time.Duration) Option {
	return func(o *agentOptions) {
		if duration > 0 {
			o.frameDuration = duration
		}
	}
}

// WithDetectorOptions forwards tuning to the voice activity detector.
func WithDetectorOptions(opts ...vad.DetectorOption) Option {
	return func(o *agentOptions) { o.detectorOptions = append(o.detectorOptions, opts...) }
}

// WithOverlapPolicy decides what happens to speech detected while a turn is
// already in flight.
func WithOverlapPolicy(policy OverlapPolicy) Option {
	return func(o *agentOptions) {
		switch policy {
		case OverlapDrop, OverlapBufferLatest:
			o.overlapPolicy = policy
		}
	}
}

// WithCollaboratorTimeout bounds each transcription, response and synthesis
// call. A collaborator that exceeds it fails the turn instead of wedging the
// pipeline.
func WithCollaboratorTimeout(timeout time.Duration) Option {
	return func(o *agentOptions) {
		if timeout > 0 {
			o.collaboratorTimeout = timeout
		}
	}
}

// WithMaxHistory caps how many exchanges of conversation history are kept
// and passed to the responder. The oldest exchanges are discarded first.
func WithMaxHistory(max int) Option {
	return func(o *agentOptions) {
		if max > 0 {
			o.maxHistory = max
		}
	}
}

// WithTranscriptCallback registers a callback for every accepted transcript.
func WithTranscriptCallback(callback func(transcript string)) Option {
	return func(o *agentOptions) { o.callbacks.onTranscript = callback }
}

// WithResponseCallback registers a callback for every generated reply.
func WithResponseCallback(callback func(response string)) Option {
	return func(o *agentOptions) { o.callbacks.onResponse = callback }
}

// WithTurnCompletedCallback registers a callback invoked with a snapshot of
// every completed turn.
func WithTurnCompletedCallback(callback func(turn Turn)) Option {
	return func(o *agentOptions) { o.callbacks.onTurnCompleted = callback }
}

// WithTurnFailedCallback registers a callback invoked when a turn is
// abandoned because a collaborator failed or timed out.
func WithTurnFailedCallback(callback func(turn Turn, err error)) Option {
	return func(o *agentOptions) { o.callbacks.onTurnFailed = callback }
}

// WithSupervisorOptions forwards tuning to the module supervisor.
func WithSupervisorOptions(opts ...SupervisorOption) Option {
	return func(o *agentOptions) { o.supervisorOptions = append(o.supervisorOptions, opts...) }
}

// WithModule registers an additional module to run under the agent's
// supervisor alongside the built-in pipeline.
func WithModule(module Module) Option {
	return func(o *agentOptions) { o.extraModules = append(o.extraModules, module) }
}
