package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/events"
)

type scriptedCapture struct {
	encoding audio.EncodingInfo
	chunks   [][]byte
	attempts atomic.Int32
	failures int32
	closes   atomic.Int32
}

func (c *scriptedCapture) EncodingInfo() audio.EncodingInfo { return c.encoding }

func (c *scriptedCapture) Close() { c.closes.Add(1) }

func (c *scriptedCapture) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	if c.attempts.Add(1) <= c.failures {
		return errors.New("device unavailable")
	}

	for _, chunk := range c.chunks {
		onAudio(chunk)
	}
	<-ctx.Done()
	return nil
}

func TestFrameSourceRechunksDeviceAudioIntoFixedFrames(t *testing.T) {
	encoding := audio.GetDefaultEncodingInfo()
	frameBytes := encoding.Bytes(50 * time.Millisecond)

	// Uneven device chunks covering exactly three frames plus a remainder
	// that must stay pending.
	chunks := [][]byte{
		make([]byte, frameBytes/2),
		make([]byte, frameBytes),
		make([]byte, frameBytes+frameBytes/2),
		make([]byte, frameBytes/4),
	}
	for i, chunk := range chunks {
		for j := range chunk {
			chunk[j] = byte(i + 1)
		}
	}

	bus := eventbus.New()
	sub := bus.Subscribe(events.KindAudioFrameCaptured, eventbus.WithQueueCapacity(16))
	defer sub.Close()

	client := &scriptedCapture{encoding: encoding, chunks: chunks}
	source := newFrameSource(bus, client, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	for i := range 3 {
		event, err := sub.ReceiveTimeout(time.Second)
		if err != nil {
			t.Fatalf("frame %d not published: %v", i, err)
		}
		frame := event.(events.AudioFrameCaptured).Frame
		if len(frame.PCM) != frameBytes {
			t.Fatalf("frame %d has %d bytes, expected %d", i, len(frame.PCM), frameBytes)
		}
		if frame.Encoding != encoding {
			t.Fatalf("frame %d carries wrong encoding: %+v", i, frame.Encoding)
		}
	}

	// The trailing partial chunk must not be published as a short frame.
	if _, err := sub.ReceiveTimeout(50 * time.Millisecond); !errors.Is(err, eventbus.ErrTimeout) {
		t.Fatalf("expected no further frames, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("frame source did not stop")
	}
	// Close is the agent's job; a Run exit must leave the device usable for
	// the next supervised attempt.
	if closes := client.closes.Load(); closes != 0 {
		t.Fatalf("run closed the capture client %d times", closes)
	}
}

func TestFrameSourceRetriesFailedDevice(t *testing.T) {
	encoding := audio.GetDefaultEncodingInfo()
	frameBytes := encoding.Bytes(50 * time.Millisecond)

	bus := eventbus.New()
	sub := bus.Subscribe(events.KindAudioFrameCaptured)
	defer sub.Close()

	client := &scriptedCapture{
		encoding: encoding,
		chunks:   [][]byte{make([]byte, frameBytes)},
		failures: 2,
	}
	source := newFrameSource(bus, client, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go source.Run(ctx)

	if _, err := sub.ReceiveTimeout(2 * time.Second); err != nil {
		t.Fatalf("no frame after device recovery: %v", err)
	}
	if attempts := client.attempts.Load(); attempts != 3 {
		t.Fatalf("expected 3 open attempts, got %d", attempts)
	}
}

func TestFrameSourceStreamsAgainAfterSupervisedRestart(t *testing.T) {
	encoding := audio.GetDefaultEncodingInfo()
	frameBytes := encoding.Bytes(50 * time.Millisecond)

	// Enough failures to exhaust one Run's retry budget, so the next Run
	// reuses the same client the way a supervisor restart does.
	client := &scriptedCapture{
		encoding: encoding,
		chunks:   [][]byte{make([]byte, frameBytes)},
		failures: 4,
	}

	bus := eventbus.New()
	sub := bus.Subscribe(events.KindAudioFrameCaptured)
	defer sub.Close()
	source := newFrameSource(bus, client, 50*time.Millisecond)

	if err := source.Run(context.Background()); err == nil {
		t.Fatalf("expected the first run to exhaust its retry budget")
	}
	if closes := client.closes.Load(); closes != 0 {
		t.Fatalf("failed run closed the capture client %d times", closes)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go source.Run(ctx)

	if _, err := sub.ReceiveTimeout(2 * time.Second); err != nil {
		t.Fatalf("restarted run produced no frames: %v", err)
	}
	if closes := client.closes.Load(); closes != 0 {
		t.Fatalf("restarted run closed the capture client %d times", closes)
	}
}

func TestFrameSourceGivesUpAfterRetryBudget(t *testing.T) {
	client := &scriptedCapture{
		encoding: audio.GetDefaultEncodingInfo(),
		failures: 100,
	}
	source := newFrameSource(eventbus.New(), client, 50*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- source.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected a device failure error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("frame source did not give up on a dead device")
	}
	if attempts := client.attempts.Load(); attempts != 4 {
		t.Fatalf("expected initial attempt plus 3 retries, got %d", attempts)
	}
}
