// Package agent wires the voice pipeline together: a frame source feeding
// the voice activity detector, the turn orchestrator, and the playback sink,
// all communicating over a shared event bus and supervised as restartable
// modules.
package agent

import (
	"context"
	"sync"

	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/vad"
)

type Agent struct {
	bus          *eventbus.Bus
	supervisor   *Supervisor
	orchestrator *orchestrator

	// capture is closed by the agent, not by the frame source, so supervisor
	// restarts keep streaming from a live device.
	capture CaptureClient

	closeOnce sync.Once
}

func New(opts ...Option) *Agent {
	options := agentOptions{
		frameDuration:       defaultFrameDuration,
		overlapPolicy:       OverlapDrop,
		collaboratorTimeout: defaultCollaboratorTimeout,
		maxHistory:          defaultMaxHistory,
	}
	for _, opt := range opts {
		opt(&options)
	}

	bus := eventbus.New()

	orch := newOrchestrator(bus)
	orch.transcriber = options.transcriber
	orch.responder = options.responder
	orch.synthesizer = options.synthesizer
	orch.overlapPolicy = options.overlapPolicy
	orch.collaboratorTimeout = options.collaboratorTimeout
	orch.maxHistory = options.maxHistory
	orch.callbacks = options.callbacks

	supervisor := NewSupervisor(options.supervisorOptions...)
	if options.capture != nil {
		supervisor.Add(newFrameSource(bus, options.capture, options.frameDuration))
	}
	supervisor.Add(newVoiceDetector(bus, vad.NewDetector(options.detectorOptions...)))
	supervisor.Add(orch)
	supervisor.Add(newPlaybackSink(bus, options.playback))
	for _, module := range options.extraModules {
		supervisor.Add(module)
	}

	return &Agent{bus: bus, supervisor: supervisor, orchestrator: orch, capture: options.capture}
}

// Bus exposes the event bus, for publishing events from outside the built-in
// modules and for observing the pipeline.
func (a *Agent) Bus() *eventbus.Bus { return a.bus }

// Phase is the orchestrator's current turn phase.
func (a *Agent) Phase() TurnPhase { return a.orchestrator.Phase() }

// History is a snapshot of the completed exchanges so far.
func (a *Agent) History() []Exchange { return a.orchestrator.historySnapshot() }

// Status reports every supervised module.
func (a *Agent) Status() []ModuleStatus { return a.supervisor.Status() }

// Run starts the pipeline and blocks until ctx is cancelled or a module
// fails permanently. A permanent failure shuts the remaining modules down
// before the error is returned. The returned error is nil on clean shutdown.
func (a *Agent) Run(ctx context.Context) error {
	a.supervisor.Start(ctx)

	go func() {
		<-ctx.Done()
		a.Close()
	}()

	err := a.supervisor.Wait()
	if err != nil {
		a.Close()
	}
	return err
}

// Close shuts the pipeline down, waits for modules to drain, and releases the
// capture device.
func (a *Agent) Close() {
	a.closeOnce.Do(func() {
		a.supervisor.Stop()
		if a.capture != nil {
			a.capture.Close()
		}
	})
}
