package eventbus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TreasureProject/voicecore/core/events"
)

func TestEverySubscriberReceivesAllEventsInPublishOrder(t *testing.T) {
	bus := New()

	const subscribers = 3
	const published = 20

	subs := make([]*Subscription, 0, subscribers)
	for i := range subscribers {
		subs = append(subs, bus.Subscribe(events.KindTranscriptReady,
			WithQueueCapacity(published),
			WithSubscriberName(fmt.Sprintf("sub-%d", i)),
		))
	}

	for i := range published {
		bus.Publish(events.NewTranscriptReady("segment", fmt.Sprintf("event-%d", i)))
	}

	for _, sub := range subs {
		for i := range published {
			event, err := sub.ReceiveTimeout(time.Second)
			if err != nil {
				t.Fatalf("receive %d failed: %v", i, err)
			}
			transcript, ok := event.(events.TranscriptReady)
			if !ok {
				t.Fatalf("expected TranscriptReady, got %T", event)
			}
			if want := fmt.Sprintf("event-%d", i); transcript.Text != want {
				t.Fatalf("out of order delivery: expected %q, got %q", want, transcript.Text)
			}
		}
	}
}

func TestOverflowDropsOldestForSlowSubscriberOnly(t *testing.T) {
	bus := New()

	slow := bus.Subscribe(events.KindTranscriptReady, WithQueueCapacity(4), WithSubscriberName("slow"))
	fast := bus.Subscribe(events.KindTranscriptReady, WithQueueCapacity(64), WithSubscriberName("fast"))

	const published = 10
	for i := range published {
		bus.Publish(events.NewTranscriptReady("segment", fmt.Sprintf("event-%d", i)))
	}

	if got := slow.Dropped(); got != published-4 {
		t.Fatalf("expected %d dropped events, got %d", published-4, got)
	}

	// The slow subscriber keeps the newest events, still in order.
	for i := published - 4; i < published; i++ {
		event, err := slow.ReceiveTimeout(time.Second)
		if err != nil {
			t.Fatalf("slow receive failed: %v", err)
		}
		if want := fmt.Sprintf("event-%d", i); event.(events.TranscriptReady).Text != want {
			t.Fatalf("expected %q after overflow, got %q", want, event.(events.TranscriptReady).Text)
		}
	}

	if got := fast.Dropped(); got != 0 {
		t.Fatalf("fast subscriber should be unaffected, dropped %d", got)
	}
	for i := range published {
		event, err := fast.ReceiveTimeout(time.Second)
		if err != nil {
			t.Fatalf("fast receive %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("event-%d", i); event.(events.TranscriptReady).Text != want {
			t.Fatalf("expected %q, got %q", want, event.(events.TranscriptReady).Text)
		}
	}
}

func TestReceiveTimesOutOnQuietTopic(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(events.KindResponseReady)

	if _, err := sub.ReceiveTimeout(20 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestReceiveOnClosedSubscriptionFails(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(events.KindResponseReady)
	sub.Close()

	if _, err := sub.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestClosedSubscriptionNoLongerReceivesPublishes(t *testing.T) {
	bus := New()
	sub := bus.Subscribe(events.KindResponseReady, WithQueueCapacity(1))
	sub.Close()

	bus.Publish(events.NewResponseReady("turn", "after close"))

	if got := len(sub.Events()); got != 0 {
		t.Fatalf("expected no queued events after close, got %d", got)
	}
}

func TestPublishNeverBlocksWithoutConsumers(t *testing.T) {
	bus := New()
	bus.Subscribe(events.KindSpeechAudioFrame, WithQueueCapacity(1), WithSubscriberName("stalled"))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for range 1000 {
			bus.Publish(events.NewSpeechAudioFrame("turn", []byte{0, 1}))
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked on a stalled subscriber")
	}
}

func TestPublishWithoutSubscribersIsANoop(t *testing.T) {
	bus := New()
	bus.Publish(events.NewResponseReady("turn", "nobody listening"))
}
