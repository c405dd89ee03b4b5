package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nodegate-io/nodegate/internal/eventbus"
)

// exported topics mirrored to NATS when an exporter is configured.
var exportTopics = []eventbus.Topic{
	eventbus.TopicLifecycleState,
	eventbus.TopicNetReconnect,
	eventbus.TopicTagsAdmitted,
	eventbus.TopicNotifyResult,
}

// wireEvent is the JSON shape published to NATS subjects.
type wireEvent struct {
	Topic         string    `json:"topic"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Payload       any       `json:"payload"`
}

// Exporter mirrors selected bus topics to a NATS server so a fleet
// backend can watch node health without polling. Export is best effort:
// a down broker never blocks the control loop.
type Exporter struct {
	url      string
	nodeName string
	bus      *eventbus.Bus

	nc        *nats.Conn
	lifecycle eventbus.ServiceLifecycle
}

// NewExporter creates an exporter for the given NATS URL. The node name
// becomes the second subject token: nodegate.<node>.<topic>.
func NewExporter(url, nodeName string, bus *eventbus.Bus) *Exporter {
	return &Exporter{
		url:      url,
		nodeName: nodeName,
		bus:      bus,
	}
}

// SubjectFor returns the NATS subject used for a bus topic.
func SubjectFor(nodeName string, topic eventbus.Topic) string {
	return fmt.Sprintf("nodegate.%s.%s", nodeName, topic)
}

// Start connects to NATS and begins mirroring events.
func (e *Exporter) Start(ctx context.Context) error {
	nc, err := nats.Connect(e.url,
		nats.Name("nodegate-"+e.nodeName),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[telemetry] nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[telemetry] nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("telemetry: connect %s: %w", e.url, err)
	}
	e.nc = nc

	e.lifecycle.Start(ctx)
	for _, topic := range exportTopics {
		sub := e.bus.Subscribe(topic, eventbus.WithSubscriptionName("nats-export"))
		e.lifecycle.AddSubscriptions(sub)
		e.lifecycle.Go(func(ctx context.Context) {
			e.pump(ctx, sub)
		})
	}

	log.Printf("[telemetry] exporting %d topics to %s", len(exportTopics), e.url)
	return nil
}

// Shutdown stops the mirror workers and closes the connection.
func (e *Exporter) Shutdown(ctx context.Context) error {
	err := e.lifecycle.Shutdown(ctx)
	if e.nc != nil {
		e.nc.Close()
	}
	return err
}

func (e *Exporter) pump(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			e.publish(env)
		}
	}
}

func (e *Exporter) publish(env eventbus.Envelope) {
	data, err := json.Marshal(wireEvent{
		Topic:         string(env.Topic),
		Timestamp:     env.Timestamp,
		Source:        string(env.Source),
		CorrelationID: env.CorrelationID,
		Payload:       env.Payload,
	})
	if err != nil {
		log.Printf("[telemetry] encode %s: %v", env.Topic, err)
		return
	}

	if err := e.nc.Publish(SubjectFor(e.nodeName, env.Topic), data); err != nil {
		log.Printf("[telemetry] publish %s: %v", env.Topic, err)
	}
}
