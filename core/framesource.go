package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/events"
)

// CaptureClient streams raw audio from an input device. Stream blocks until
// the context ends or the device fails; chunk sizes are device dependent.
type CaptureClient interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

const (
	defaultFrameDuration  = 50 * time.Millisecond
	defaultCaptureRetries = 3
	captureRetryBackoff   = 200 * time.Millisecond
)

// frameSource adapts a capture client's arbitrary chunk sizes into fixed
// duration frames on the bus. Device failures are retried a few times in
// place before the error is handed to the supervisor. The client stays open
// across supervisor restarts; the agent closes it on shutdown.
type frameSource struct {
	bus    *eventbus.Bus
	client CaptureClient

	frameDuration time.Duration
	retries       int

	pending []byte
}

func newFrameSource(bus *eventbus.Bus, client CaptureClient, frameDuration time.Duration) *frameSource {
	if frameDuration <= 0 {
		frameDuration = defaultFrameDuration
	}

	return &frameSource{
		bus:           bus,
		client:        client,
		frameDuration: frameDuration,
		retries:       defaultCaptureRetries,
	}
}

func (f *frameSource) Name() string { return "frame-source" }

func (f *frameSource) Run(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			backoff := captureRetryBackoff << (attempt - 1)
			logger.Warn("reopening capture device",
				"attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
		}

		started := time.Now()
		lastErr = f.client.Stream(ctx, f.onAudio)
		if ctx.Err() != nil {
			return nil
		}
		if lastErr == nil {
			return nil
		}

		// A stream that survived for a while earns a fresh retry budget.
		if time.Since(started) > time.Minute {
			attempt = 0
		}
	}

	return fmt.Errorf("capture device failed: %w", lastErr)
}

// onAudio re-chunks device callbacks into exact frame-size windows. A partial
// trailing chunk stays pending until the device delivers the rest.
func (f *frameSource) onAudio(chunk []byte) {
	encoding := f.client.EncodingInfo()
	frameBytes := encoding.Bytes(f.frameDuration)
	if frameBytes <= 0 {
		return
	}

	f.pending = append(f.pending, chunk...)
	for len(f.pending) >= frameBytes {
		frame := audio.NewFrame(f.pending[:frameBytes], encoding, time.Now())
		f.pending = f.pending[frameBytes:]
		f.bus.Publish(events.NewAudioFrameCaptured(frame))
	}
}
