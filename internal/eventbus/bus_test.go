package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/nodegate-io/nodegate/internal/eventbus"
)

func TestBusPublishDeliver(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.TopicTagsAdmitted)
	defer sub.Close()

	payload := eventbus.TagEvent{
		TagID:  "04A3FF",
		SeenAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	bus.Publish(ctx, eventbus.Envelope{
		Topic:   eventbus.TopicTagsAdmitted,
		Source:  eventbus.SourceController,
		Payload: payload,
	})

	select {
	case env := <-sub.C():
		msg, ok := env.Payload.(eventbus.TagEvent)
		if !ok {
			t.Fatalf("expected TagEvent payload, got %T", env.Payload)
		}
		if msg.TagID != "04A3FF" {
			t.Fatalf("unexpected tag id: %q", msg.TagID)
		}
		if env.Source != eventbus.SourceController {
			t.Fatalf("unexpected source: %q", env.Source)
		}
		if env.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}

	metrics := bus.Metrics()
	if metrics.PublishTotal != 1 {
		t.Fatalf("expected PublishTotal 1, got %d", metrics.PublishTotal)
	}
}

func TestBusDropOldestWhenFull(t *testing.T) {
	bus := eventbus.New(eventbus.WithTopicBuffer(eventbus.TopicNotifyResult, 1))
	sub := bus.Subscribe(eventbus.TopicNotifyResult)
	defer sub.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		bus.Publish(ctx, eventbus.Envelope{
			Topic:   eventbus.TopicNotifyResult,
			Payload: eventbus.NotifyResultEvent{Status: i},
		})
	}

	env := <-sub.C()
	msg := env.Payload.(eventbus.NotifyResultEvent)
	if msg.Status != 2 {
		t.Fatalf("expected newest event to survive, got status %d", msg.Status)
	}

	if bus.Metrics().DroppedTotal == 0 {
		t.Fatal("expected drops to be recorded")
	}
}

func TestBusSubscribeNilBus(t *testing.T) {
	var bus *eventbus.Bus
	sub := bus.Subscribe(eventbus.TopicLifecycleState)

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel from nil bus")
	}
	sub.Close() // must not panic
}

func TestBusShutdownClosesSubscriptions(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe(eventbus.TopicLifecycleState)

	bus.Shutdown()

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected channel closed after shutdown")
	}
}
