package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/nodegate-io/nodegate/internal/eventbus"
	"github.com/nodegate-io/nodegate/internal/hal"
)

func waitForPulses(t *testing.T, actuator *hal.SimActuator, want int) []hal.PulseKind {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		pulses := actuator.Pulses()
		if len(pulses) >= want {
			return pulses
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d pulses, got %d", want, len(pulses))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestFeedbackPulsesOnStateChange(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	actuator := hal.NewSimActuator()
	fb := NewFeedback(bus, actuator)
	if err := fb.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer fb.Shutdown(context.Background())

	eventbus.Publish(context.Background(), bus, eventbus.Lifecycle.State, eventbus.SourceJoinManager, eventbus.StateChangeEvent{
		Previous: "connecting",
		Next:     "operational",
		Reason:   "link up",
	})

	pulses := waitForPulses(t, actuator, 1)
	if pulses[0] != hal.PulseReady {
		t.Fatalf("pulse = %v, want %v", pulses[0], hal.PulseReady)
	}
}

func TestFeedbackPulsesOnTag(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	actuator := hal.NewSimActuator()
	fb := NewFeedback(bus, actuator)
	if err := fb.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer fb.Shutdown(context.Background())

	eventbus.Publish(context.Background(), bus, eventbus.Tags.Admitted, eventbus.SourceController, eventbus.TagEvent{
		TagID:  "04A3FF",
		SeenAt: time.Now(),
	})

	pulses := waitForPulses(t, actuator, 1)
	if pulses[0] != hal.PulseTag {
		t.Fatalf("pulse = %v, want %v", pulses[0], hal.PulseTag)
	}
}

func TestFeedbackNilActuator(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	fb := NewFeedback(bus, nil)
	if err := fb.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	eventbus.Publish(context.Background(), bus, eventbus.Tags.Admitted, eventbus.SourceController, eventbus.TagEvent{TagID: "01"})

	// Must not panic; give the worker a moment to consume.
	time.Sleep(20 * time.Millisecond)
	if err := fb.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSubjectFor(t *testing.T) {
	got := SubjectFor("lab-door", eventbus.TopicTagsAdmitted)
	want := "nodegate.lab-door.tags.admitted"
	if got != want {
		t.Fatalf("SubjectFor = %q, want %q", got, want)
	}
}
