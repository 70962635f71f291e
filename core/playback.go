package agent

import (
	"context"
	"time"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/events"
)

// PlaybackClient writes synthesized audio to an output device. SendAudio
// buffers; the device drains in real time.
type PlaybackClient interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}

// playbackSink consumes the synthesized reply stream and reports when the
// device has drained it. Without a configured client the sink acknowledges
// streams immediately, so text-only agents still complete their turns.
type playbackSink struct {
	bus    *eventbus.Bus
	client PlaybackClient

	// Per-stream accounting, reset on every final marker.
	turnID      string
	startedAt   time.Time
	buffered    time.Duration
	writeFailed bool
}

func newPlaybackSink(bus *eventbus.Bus, client PlaybackClient) *playbackSink {
	return &playbackSink{bus: bus, client: client}
}

func (p *playbackSink) Name() string { return "playback-sink" }

func (p *playbackSink) Run(ctx context.Context) error {
	frames := p.bus.Subscribe(events.KindSpeechAudioFrame,
		eventbus.WithQueueCapacity(128), eventbus.WithSubscriberName(p.Name()))
	defer frames.Close()
	finals := p.bus.Subscribe(events.KindSpeechAudioFinal,
		eventbus.WithQueueCapacity(8), eventbus.WithSubscriberName(p.Name()))
	defer finals.Close()

	for {
		select {
		case event := <-frames.Events():
			if frame, ok := event.(events.SpeechAudioFrame); ok {
				p.handleFrame(frame)
			}
		case event := <-finals.Events():
			if final, ok := event.(events.SpeechAudioFinal); ok {
				// Frames are published before their final marker but live on
				// a separate topic, so flush anything still queued first.
				p.drainQueued(frames)
				p.finish(ctx, final.TurnID)
			}
		case <-ctx.Done():
			if p.client != nil {
				p.client.ClearBuffer()
			}
			return nil
		}
	}
}

func (p *playbackSink) drainQueued(frames *eventbus.Subscription) {
	for {
		select {
		case event := <-frames.Events():
			if frame, ok := event.(events.SpeechAudioFrame); ok {
				p.handleFrame(frame)
			}
		default:
			return
		}
	}
}

func (p *playbackSink) handleFrame(frame events.SpeechAudioFrame) {
	if p.turnID != frame.TurnID {
		p.turnID = frame.TurnID
		p.startedAt = time.Now()
		p.buffered = 0
		p.writeFailed = false
	}

	if p.client == nil {
		return
	}

	if err := p.client.SendAudio(frame.Audio); err != nil {
		if !p.writeFailed {
			logger.Error("playback write failed", "turn_id", frame.TurnID, "error", err)
		}
		p.writeFailed = true
		return
	}
	p.buffered += p.client.EncodingInfo().Duration(len(frame.Audio))
}

// finish waits out the device's remaining buffered audio before reporting
// completion, so the turn does not end while the reply is still audible.
func (p *playbackSink) finish(ctx context.Context, turnID string) {
	success := true

	if p.client != nil && p.turnID == turnID {
		if remaining := p.buffered - time.Since(p.startedAt); remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				p.client.ClearBuffer()
				success = false
			}
		}
		if p.writeFailed {
			success = false
		}
	}

	p.turnID = ""
	p.buffered = 0
	p.writeFailed = false
	p.bus.Publish(events.NewPlaybackComplete(turnID, success))
}
