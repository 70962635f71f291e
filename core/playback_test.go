package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/eventbus"
	"github.com/TreasureProject/voicecore/core/events"
)

type recordingPlayback struct {
	encoding audio.EncodingInfo

	mu      sync.Mutex
	chunks  [][]byte
	cleared bool
	sendErr error
}

func (p *recordingPlayback) EncodingInfo() audio.EncodingInfo { return p.encoding }

func (p *recordingPlayback) SendAudio(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.chunks = append(p.chunks, chunk)
	return nil
}

func (p *recordingPlayback) ClearBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = true
}

func (p *recordingPlayback) received() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.chunks)
}

func startPlaybackSink(t *testing.T, client PlaybackClient) (*eventbus.Bus, *eventbus.Subscription) {
	t.Helper()

	bus := eventbus.New()
	sink := newPlaybackSink(bus, client)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sink.Run(ctx)

	// Let the sink attach its subscriptions before the test publishes.
	time.Sleep(50 * time.Millisecond)

	completions := bus.Subscribe(events.KindPlaybackComplete)
	t.Cleanup(completions.Close)
	return bus, completions
}

func TestPlaybackSinkReportsCompletionAfterDrain(t *testing.T) {
	encoding := audio.GetDefaultEncodingInfo()
	client := &recordingPlayback{encoding: encoding}
	bus, completions := startPlaybackSink(t, client)

	chunk := make([]byte, encoding.Bytes(50*time.Millisecond))
	bus.Publish(events.NewSpeechAudioFrame("turn-1", chunk))
	bus.Publish(events.NewSpeechAudioFrame("turn-1", chunk))
	bus.Publish(events.NewSpeechAudioFinal("turn-1"))

	event, err := completions.ReceiveTimeout(2 * time.Second)
	if err != nil {
		t.Fatalf("no completion published: %v", err)
	}
	complete := event.(events.PlaybackComplete)
	if complete.TurnID != "turn-1" || !complete.Success {
		t.Fatalf("unexpected completion: %+v", complete)
	}
	if got := client.received(); got != 2 {
		t.Fatalf("expected 2 chunks forwarded to the device, got %d", got)
	}
}

func TestPlaybackSinkWithoutClientAcknowledgesImmediately(t *testing.T) {
	bus, completions := startPlaybackSink(t, nil)

	bus.Publish(events.NewSpeechAudioFinal("turn-quiet"))

	event, err := completions.ReceiveTimeout(time.Second)
	if err != nil {
		t.Fatalf("no completion published: %v", err)
	}
	if complete := event.(events.PlaybackComplete); !complete.Success {
		t.Fatalf("expected successful completion without a device, got %+v", complete)
	}
}

func TestPlaybackSinkReportsDeviceFailure(t *testing.T) {
	client := &recordingPlayback{
		encoding: audio.GetDefaultEncodingInfo(),
		sendErr:  errors.New("device gone"),
	}
	bus, completions := startPlaybackSink(t, client)

	bus.Publish(events.NewSpeechAudioFrame("turn-2", []byte{1, 2, 3, 4}))
	bus.Publish(events.NewSpeechAudioFinal("turn-2"))

	event, err := completions.ReceiveTimeout(time.Second)
	if err != nil {
		t.Fatalf("no completion published: %v", err)
	}
	if complete := event.(events.PlaybackComplete); complete.Success {
		t.Fatalf("expected failed completion, got %+v", complete)
	}
}
