package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/events"
)

// Transcriber turns a finished speech segment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, segment audio.Segment) (string, error)
}

// Responder generates the reply for a transcript, given the conversation so
// far.
type Responder interface {
	Respond(ctx context.Context, prompt string, history []Exchange) (string, error)
}

// Synthesizer streams reply audio chunks through onAudio as they are
// generated and returns once the full reply has been rendered.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, onAudio func(audio []byte)) error
}

const (
	defaultCollaboratorTimeout = 30 * time.Second
	defaultMaxHistory          = 64
)

type turnCallbacks struct {
	onTranscript    func(transcript string)
	onResponse      func(response string)
	onTurnCompleted func(turn Turn)
	onTurnFailed    func(turn Turn, err error)
}

type turnFailure struct {
	turnID string
	stage  string
	err    error
}

// orchestrator owns the turn lifecycle. All state transitions happen on the
// Run goroutine; collaborators run concurrently but report back through the
// bus or the failure channel, never by touching state directly.
type orchestrator struct {
	bus *eventbus.Bus

	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer

	overlapPolicy       OverlapPolicy
	collaboratorTimeout time.Duration
	callbacks           turnCallbacks

	active         *Turn
	activeSpan     trace.Span
	pendingSegment *audio.Segment

	// phase mirrors the active turn's phase for lock-free external reads.
	phase atomic.Value

	failures chan turnFailure

	historyMu  sync.Mutex
	history    []Exchange
	maxHistory int
}

func newOrchestrator(bus *eventbus.Bus) *orchestrator {
	return &orchestrator{
		bus:                 bus,
		overlapPolicy:       OverlapDrop,
		collaboratorTimeout: defaultCollaboratorTimeout,
		failures:            make(chan turnFailure, 8),
		maxHistory:          defaultMaxHistory,
	}
}

func (o *orchestrator) Name() string { return "orchestrator" }

// Phase is the current turn phase, PhaseListening when no turn is in flight.
func (o *orchestrator) Phase() TurnPhase {
	if phase, ok := o.phase.Load().(TurnPhase); ok {
		return phase
	}
	return PhaseListening
}

func (o *orchestrator) setPhase(phase TurnPhase) {
	if o.active != nil {
		o.active.Phase = phase
	}
	o.phase.Store(phase)
}

func (o *orchestrator) Run(ctx context.Context) error {
	segments := o.bus.Subscribe(events.KindSpeechSegmentReady,
		eventbus.WithQueueCapacity(8), eventbus.WithSubscriberName(o.Name()))
	defer segments.Close()
	transcripts := o.bus.Subscribe(events.KindTranscriptReady,
		eventbus.WithQueueCapacity(8), eventbus.WithSubscriberName(o.Name()))
	defer transcripts.Close()
	responses := o.bus.Subscribe(events.KindResponseReady,
		eventbus.WithQueueCapacity(8), eventbus.WithSubscriberName(o.Name()))
	defer responses.Close()
	playback := o.bus.Subscribe(events.KindPlaybackComplete,
		eventbus.WithQueueCapacity(8), eventbus.WithSubscriberName(o.Name()))
	defer playback.Close()

	for {
		select {
		case event := <-segments.Events():
			if segment, ok := event.(events.SpeechSegmentReady); ok {
				o.handleSegment(ctx, segment.Segment)
			}
		case event := <-transcripts.Events():
			if transcript, ok := event.(events.TranscriptReady); ok {
				o.handleTranscript(ctx, transcript)
			}
		case event := <-responses.Events():
			if response, ok := event.(events.ResponseReady); ok {
				o.handleResponse(ctx, response)
			}
		case event := <-playback.Events():
			if complete, ok := event.(events.PlaybackComplete); ok {
				o.handlePlayback(ctx, complete)
			}
		case failure := <-o.failures:
			o.handleFailure(ctx, failure)
		case <-ctx.Done():
			if o.active != nil {
				o.endTurn()
			}
			return nil
		}
	}
}

func (o *orchestrator) handleSegment(ctx context.Context, segment audio.Segment) {
	if o.active != nil {
		overlapSegments.Add(ctx, 1)
		switch o.overlapPolicy {
		case OverlapBufferLatest:
			if o.pendingSegment != nil {
				logger.Info("replacing buffered overlap segment",
					"replaced", o.pendingSegment.ID, "segment_id", segment.ID)
			}
			o.pendingSegment = &segment
		default:
			logger.Info("dropping segment, turn already in flight",
				"segment_id", segment.ID, "turn_id", o.active.ID, "phase", o.active.Phase)
		}
		return
	}

	o.startTurn(ctx, segment)
}

func (o *orchestrator) startTurn(ctx context.Context, segment audio.Segment) {
	if o.transcriber == nil {
		logger.Warn("no transcriber configured, ignoring segment", "segment_id", segment.ID)
		return
	}

	o.active = newTurn(segment)
	o.setPhase(PhaseAwaitingTranscript)
	_, o.activeSpan = tracer.Start(ctx, "turn")
	o.activeSpan.AddEvent("segment received")
	logger.Info("turn started",
		"turn_id", o.active.ID, "segment_id", segment.ID, "duration", segment.Duration())

	go o.transcribe(ctx, o.active.ID, segment)
}

func (o *orchestrator) handleTranscript(ctx context.Context, transcript events.TranscriptReady) {
	if o.active == nil || o.active.SegmentID != transcript.SegmentID {
		logger.Debug("ignoring transcript for inactive segment", "segment_id", transcript.SegmentID)
		return
	}

	o.active.Transcript = transcript.Text
	if strings.TrimSpace(transcript.Text) == "" {
		// Nothing was actually said; back to listening without a reply.
		logger.Info("empty transcript, abandoning turn", "turn_id", o.active.ID)
		o.endTurn()
		o.startPending(ctx)
		return
	}

	if o.callbacks.onTranscript != nil {
		o.callbacks.onTranscript(transcript.Text)
	}
	o.activeSpan.AddEvent("transcript ready")

	if o.responder == nil {
		o.completeTurn()
		o.startPending(ctx)
		return
	}

	o.setPhase(PhaseAwaitingResponse)
	go o.respond(ctx, o.active.ID, transcript.Text, o.historySnapshot())
}

func (o *orchestrator) handleResponse(ctx context.Context, response events.ResponseReady) {
	if o.active == nil || o.active.ID != response.TurnID {
		logger.Debug("ignoring response for inactive turn", "turn_id", response.TurnID)
		return
	}

	o.active.Response = response.Text
	if o.callbacks.onResponse != nil {
		o.callbacks.onResponse(response.Text)
	}
	o.activeSpan.AddEvent("response ready")

	o.setPhase(PhaseSpeaking)
	if o.synthesizer == nil {
		// No voice configured; the playback sink acknowledges the empty
		// stream and completes the turn.
		o.bus.Publish(events.NewSpeechAudioFinal(o.active.ID))
		return
	}
	go o.synthesize(ctx, o.active.ID, response.Text)
}

func (o *orchestrator) handlePlayback(ctx context.Context, complete events.PlaybackComplete) {
	if o.active == nil || o.active.ID != complete.TurnID {
		logger.Debug("ignoring playback completion for inactive turn", "turn_id", complete.TurnID)
		return
	}

	if !complete.Success {
		logger.Warn("playback did not finish cleanly", "turn_id", complete.TurnID)
	}
	o.completeTurn()
	o.startPending(ctx)
}

func (o *orchestrator) handleFailure(ctx context.Context, failure turnFailure) {
	if o.active == nil || o.active.ID != failure.turnID {
		logger.Debug("ignoring failure for inactive turn",
			"turn_id", failure.turnID, "stage", failure.stage)
		return
	}

	err := fmt.Errorf("%s failed: %w", failure.stage, failure.err)
	logger.Error("turn failed", "turn_id", failure.turnID, "stage", failure.stage, "error", failure.err)
	turnsFailed.Add(ctx, 1)
	o.activeSpan.RecordError(err)
	o.activeSpan.SetStatus(codes.Error, err.Error())

	if o.callbacks.onTurnFailed != nil {
		o.callbacks.onTurnFailed(*o.active, err)
	}
	o.endTurn()
	o.startPending(ctx)
}

// completeTurn records the exchange and returns to listening.
func (o *orchestrator) completeTurn() {
	turn := *o.active
	if turn.Transcript != "" {
		o.appendHistory(Exchange{Prompt: turn.Transcript, Reply: turn.Response, At: turn.StartedAt})
	}

	turnsCompleted.Add(context.Background(), 1)
	logger.Info("turn completed", "turn_id", turn.ID, "elapsed", time.Since(turn.StartedAt))
	if o.callbacks.onTurnCompleted != nil {
		o.callbacks.onTurnCompleted(turn)
	}
	o.endTurn()
}

func (o *orchestrator) endTurn() {
	if o.activeSpan != nil {
		o.activeSpan.End()
		o.activeSpan = nil
	}
	o.active = nil
	o.phase.Store(PhaseListening)
}

func (o *orchestrator) startPending(ctx context.Context) {
	if o.pendingSegment == nil {
		return
	}

	segment := *o.pendingSegment
	o.pendingSegment = nil
	o.startTurn(ctx, segment)
}

func (o *orchestrator) transcribe(ctx context.Context, turnID string, segment audio.Segment) {
	ctx, cancel := context.WithTimeout(ctx, o.collaboratorTimeout)
	defer cancel()

	text, err := o.transcriber.Transcribe(ctx, segment)
	if err != nil {
		o.reportFailure(turnID, "transcription", err)
		return
	}
	o.bus.Publish(events.NewTranscriptReady(segment.ID, text))
}

func (o *orchestrator) respond(ctx context.Context, turnID, prompt string, history []Exchange) {
	ctx, cancel := context.WithTimeout(ctx, o.collaboratorTimeout)
	defer cancel()

	reply, err := o.responder.Respond(ctx, prompt, history)
	if err != nil {
		o.reportFailure(turnID, "response generation", err)
		return
	}
	o.bus.Publish(events.NewResponseReady(turnID, reply))
}

func (o *orchestrator) synthesize(ctx context.Context, turnID, text string) {
	ctx, cancel := context.WithTimeout(ctx, o.collaboratorTimeout)
	defer cancel()

	err := o.synthesizer.Synthesize(ctx, text, func(audio []byte) {
		o.bus.Publish(events.NewSpeechAudioFrame(turnID, audio))
	})
	if err != nil {
		o.reportFailure(turnID, "speech synthesis", err)
		return
	}
	o.bus.Publish(events.NewSpeechAudioFinal(turnID))
}

func (o *orchestrator) reportFailure(turnID, stage string, err error) {
	select {
	case o.failures <- turnFailure{turnID: turnID, stage: stage, err: err}:
	default:
		logger.Error("failure channel full, dropping report",
			"turn_id", turnID, "stage", stage, "error", err)
	}
}

func (o *orchestrator) appendHistory(exchange Exchange) {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()

	o.history = append(o.history, exchange)
	if len(o.history) > o.maxHistory {
		o.history = o.history[len(o.history)-o.maxHistory:]
	}
}

// historySnapshot deep-copies the conversation so collaborators can read it
// without holding the lock or seeing later appends.
func (o *orchestrator) historySnapshot() []Exchange {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()

	snapshot := make([]Exchange, 0, len(o.history))
	if err := copier.Copy(&snapshot, &o.history); err != nil {
		logger.Error("failed to snapshot conversation history", "error", err)
		return nil
	}
	return snapshot
}
