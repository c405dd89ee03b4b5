package notify

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/nodegate-io/nodegate/internal/eventbus"
)

// SightingRecorder persists admitted tag reads in the local access log.
type SightingRecorder interface {
	RecordTagSighting(ctx context.Context, tagID string, seenAt time.Time, notified bool) error
}

// Service subscribes to admitted tag events and forwards each one to the
// backend. The endpoint is set once per operational session by the
// controller; when resolution failed the service stays disabled for the
// whole session and reads are only recorded locally.
type Service struct {
	client   *Client
	bus      *eventbus.Bus
	recorder SightingRecorder

	lifecycle eventbus.ServiceLifecycle

	mu         sync.Mutex
	baseURL    string
	deviceAddr string
}

// NewService creates a notification service. recorder may be nil, in which
// case sightings are not persisted.
func NewService(bus *eventbus.Bus, client *Client, recorder SightingRecorder) *Service {
	if client == nil {
		client = NewClient()
	}
	return &Service{
		client:   client,
		bus:      bus,
		recorder: recorder,
	}
}

// SetEndpoint enables the notification path for the current session.
func (s *Service) SetEndpoint(baseURL, deviceAddr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = baseURL
	s.deviceAddr = deviceAddr
}

// ClearEndpoint disables the notification path. Called when leaving the
// operational state: the resolved endpoint is deliberately not persisted.
func (s *Service) ClearEndpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = ""
	s.deviceAddr = ""
}

// Enabled reports whether an endpoint is configured for this session.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL != ""
}

// Start subscribes to the tag stream and begins forwarding.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Start(ctx)

	sub := eventbus.SubscribeTo(s.bus, eventbus.Tags.Admitted, eventbus.WithSubscriptionName("notify"))
	s.lifecycle.AddSubscriptions(sub)
	s.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, sub, nil, func(ev eventbus.TagEvent) {
			s.handleTag(ctx, ev)
		})
	})

	return nil
}

// Shutdown stops forwarding and waits for in-flight work.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.lifecycle.Shutdown(ctx)
}

func (s *Service) handleTag(ctx context.Context, ev eventbus.TagEvent) {
	s.mu.Lock()
	baseURL := s.baseURL
	deviceAddr := s.deviceAddr
	s.mu.Unlock()

	notified := false
	if baseURL == "" {
		log.Printf("[notify] endpoint unresolved, tag %s not forwarded", ev.TagID)
	} else {
		url := BuildURL(baseURL, deviceAddr, ev.TagID)
		status, body, err := s.client.Notify(ctx, url)
		result := eventbus.NotifyResultEvent{TagID: ev.TagID, URL: url, Status: status}
		switch {
		case err != nil:
			result.Err = err.Error()
			log.Printf("[notify] tag %s: %v", ev.TagID, err)
		default:
			notified = status >= http.StatusOK && status < http.StatusMultipleChoices
			log.Printf("[notify] tag %s -> %d %q", ev.TagID, status, body)
		}
		eventbus.Publish(ctx, s.bus, eventbus.Notify.Result, eventbus.SourceNotifier, result)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordTagSighting(ctx, ev.TagID, ev.SeenAt, notified); err != nil {
			log.Printf("[notify] record sighting: %v", err)
		}
	}
}
