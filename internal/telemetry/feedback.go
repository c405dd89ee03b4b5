// Package telemetry renders lifecycle and tag events for the outside
// world: log lines and actuator pulses locally, and optional NATS export
// for fleet monitoring.
package telemetry

import (
	"context"
	"log"

	"github.com/nodegate-io/nodegate/internal/eventbus"
	"github.com/nodegate-io/nodegate/internal/hal"
)

// Feedback consumes bus events and turns them into operator-visible
// side effects. It never influences control flow.
type Feedback struct {
	bus      *eventbus.Bus
	actuator hal.Actuator

	lifecycle eventbus.ServiceLifecycle
}

// NewFeedback creates the feedback sink. actuator may be nil.
func NewFeedback(bus *eventbus.Bus, actuator hal.Actuator) *Feedback {
	return &Feedback{
		bus:      bus,
		actuator: actuator,
	}
}

// Start subscribes to the event streams.
func (f *Feedback) Start(ctx context.Context) error {
	f.lifecycle.Start(ctx)

	states := eventbus.SubscribeTo(f.bus, eventbus.Lifecycle.State, eventbus.WithSubscriptionName("feedback-state"))
	tags := eventbus.SubscribeTo(f.bus, eventbus.Tags.Admitted, eventbus.WithSubscriptionName("feedback-tags"))
	results := eventbus.SubscribeTo(f.bus, eventbus.Notify.Result, eventbus.WithSubscriptionName("feedback-notify"))
	f.lifecycle.AddSubscriptions(states, tags, results)

	f.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, states, nil, f.onState)
	})
	f.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, tags, nil, f.onTag)
	})
	f.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, results, nil, f.onNotifyResult)
	})

	return nil
}

// Shutdown stops the sink.
func (f *Feedback) Shutdown(ctx context.Context) error {
	return f.lifecycle.Shutdown(ctx)
}

func (f *Feedback) pulse(kind hal.PulseKind) {
	if f.actuator != nil {
		f.actuator.Pulse(kind)
	}
}

func (f *Feedback) onState(ev eventbus.StateChangeEvent) {
	log.Printf("[telemetry] state %s -> %s: %s", ev.Previous, ev.Next, ev.Reason)
	switch ev.Next {
	case "operational":
		f.pulse(hal.PulseReady)
	case "reconnecting":
		f.pulse(hal.PulseError)
	}
}

func (f *Feedback) onTag(ev eventbus.TagEvent) {
	log.Printf("[telemetry] tag %s entered range", ev.TagID)
	f.pulse(hal.PulseTag)
}

func (f *Feedback) onNotifyResult(ev eventbus.NotifyResultEvent) {
	if ev.Err != "" {
		log.Printf("[telemetry] notification for %s failed: %s", ev.TagID, ev.Err)
	}
}
