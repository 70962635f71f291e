package agent

import (
	"context"

	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/events"
	"github.com/TreasureProject/voicecore/core/vad"
)

// voiceDetector drives the utterance state machine from captured frames and
// publishes finalized segments. Frames arrive over the bus so the detector
// stays decoupled from whichever device produced them.
type voiceDetector struct {
	bus      *eventbus.Bus
	detector *vad.Detector
}

func newVoiceDetector(bus *eventbus.Bus, detector *vad.Detector) *voiceDetector {
	return &voiceDetector{bus: bus, detector: detector}
}

func (v *voiceDetector) Name() string { return "voice-detector" }

func (v *voiceDetector) Run(ctx context.Context) error {
	// Frames arrive at a steady real-time rate; the deep queue absorbs
	// classification jitter without dropping audio mid-utterance.
	sub := v.bus.Subscribe(events.KindAudioFrameCaptured,
		eventbus.WithQueueCapacity(128),
		eventbus.WithSubscriberName(v.Name()),
	)
	defer sub.Close()

	for {
		select {
		case event := <-sub.Events():
			captured, ok := event.(events.AudioFrameCaptured)
			if !ok {
				continue
			}
			if segment, _ := v.detector.ProcessFrame(captured.Frame); segment != nil {
				v.bus.Publish(events.NewSpeechSegmentReady(*segment))
			}
		case <-ctx.Done():
			if segment := v.detector.Flush(); segment != nil {
				v.bus.Publish(events.NewSpeechSegmentReady(*segment))
			}
			return nil
		}
	}
}
