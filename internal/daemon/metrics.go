package daemon

import (
	"context"

	"github.com/nodegate-io/nodegate/internal/eventbus"
	"github.com/nodegate-io/nodegate/internal/metric"
)

// metricsPump feeds bus events into the Prometheus counters that are
// not incremented inline by the controller.
type metricsPump struct {
	bus     *eventbus.Bus
	metrics *metric.Metrics

	lifecycle eventbus.ServiceLifecycle
}

func newMetricsPump(bus *eventbus.Bus, metrics *metric.Metrics) *metricsPump {
	return &metricsPump{bus: bus, metrics: metrics}
}

func (p *metricsPump) Start(ctx context.Context) error {
	p.lifecycle.Start(ctx)

	reconnects := eventbus.SubscribeTo(p.bus, eventbus.Lifecycle.Reconnect, eventbus.WithSubscriptionName("metrics-reconnect"))
	results := eventbus.SubscribeTo(p.bus, eventbus.Notify.Result, eventbus.WithSubscriptionName("metrics-notify"))
	p.lifecycle.AddSubscriptions(reconnects, results)

	p.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, reconnects, nil, func(eventbus.ReconnectEvent) {
			p.metrics.ReconnectAttempts.Inc()
		})
	})
	p.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, results, nil, func(ev eventbus.NotifyResultEvent) {
			outcome := "ok"
			if ev.Err != "" || ev.Status < 200 || ev.Status >= 300 {
				outcome = "error"
			}
			p.metrics.NotifyResults.WithLabelValues(outcome).Inc()
		})
	})

	return nil
}

func (p *metricsPump) Shutdown(ctx context.Context) error {
	return p.lifecycle.Shutdown(ctx)
}
