package netjoin

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nodegate-io/nodegate/internal/config/store"
	"github.com/nodegate-io/nodegate/internal/eventbus"
	"github.com/nodegate-io/nodegate/internal/hal"
)

// Defaults for the join and reconnect policies.
const (
	DefaultJoinAttempts   = 10
	DefaultJoinInterval   = time.Second
	DefaultReconnectEvery = 60 * time.Second
	DefaultMaxNetworks    = 16

	// Fixed provisioning access point identity.
	DefaultAPSSID     = "nodegate-setup"
	DefaultAPPassword = "nodegate"
)

// Config holds the join manager's timing and provisioning policies.
type Config struct {
	JoinAttempts   int           // station-mode status polls before giving up
	JoinInterval   time.Duration // spacing between status polls
	ReconnectEvery time.Duration // floor between reconnect attempts
	MaxNetworks    int           // scanned-network list capacity
	APSSID         string
	APPassword     string
}

func (c *Config) applyDefaults() {
	if c.JoinAttempts <= 0 {
		c.JoinAttempts = DefaultJoinAttempts
	}
	if c.JoinInterval <= 0 {
		c.JoinInterval = DefaultJoinInterval
	}
	if c.ReconnectEvery <= 0 {
		c.ReconnectEvery = DefaultReconnectEvery
	}
	if c.MaxNetworks <= 0 {
		c.MaxNetworks = DefaultMaxNetworks
	}
	if c.APSSID == "" {
		c.APSSID = DefaultAPSSID
	}
	if c.APPassword == "" {
		c.APPassword = DefaultAPPassword
	}
}

// Manager owns the device lifecycle state machine. All methods are called
// from the controller's single tick sequence; the mutex only guards State
// reads from other goroutines (console, status server).
type Manager struct {
	radio hal.Radio
	bus   *eventbus.Bus
	clock Clock
	cfg   Config

	mu            sync.Mutex
	state         State
	networks      []string
	reconnects    int
	lastReconnect time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager's clock.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithConfig overrides the join and reconnect policies.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// New builds a join manager driving the given radio. Events are published
// on bus when it is non-nil.
func New(radio hal.Radio, bus *eventbus.Bus, opts ...Option) *Manager {
	m := &Manager{
		radio: radio,
		bus:   bus,
		clock: systemClock{},
		state: StateUnprovisioned,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg.applyDefaults()
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Networks returns the SSIDs captured when provisioning started. The list
// is immutable for the lifetime of the provisioning session.
func (m *Manager) Networks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.networks))
	copy(out, m.networks)
	return out
}

// Reconnects reports how many reconnect attempts this session has issued.
func (m *Manager) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

func (m *Manager) setState(ctx context.Context, next State, reason string) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	if prev == next {
		return
	}
	log.Printf("[netjoin] %s -> %s (%s)", prev, next, reason)
	eventbus.Publish(ctx, m.bus, eventbus.Lifecycle.State, eventbus.SourceJoinManager, eventbus.StateChangeEvent{
		Previous: prev.String(),
		Next:     next.String(),
		Reason:   reason,
	})
}

// Boot runs the boot-time branch of the state machine: empty credentials
// enter provisioning, stored credentials attempt a station-mode join.
func (m *Manager) Boot(ctx context.Context, creds store.Credentials) error {
	if creds.Empty() {
		return m.EnterProvisioning(ctx)
	}
	return m.Connect(ctx, creds)
}

// EnterProvisioning starts the access point and captures the visible
// network list for the portal form.
func (m *Manager) EnterProvisioning(ctx context.Context) error {
	if err := m.radio.StartAccessPoint(ctx, m.cfg.APSSID, m.cfg.APPassword); err != nil {
		return fmt.Errorf("netjoin: start access point: %w", err)
	}

	networks, err := m.radio.Scan(ctx)
	if err != nil {
		// A failed scan leaves the form empty but the portal still serves;
		// the operator can rescan by power-cycling.
		log.Printf("[netjoin] network scan failed: %v", err)
		networks = nil
	}
	if len(networks) > m.cfg.MaxNetworks {
		networks = networks[:m.cfg.MaxNetworks]
	}

	m.mu.Lock()
	m.networks = networks
	m.mu.Unlock()

	m.setState(ctx, StateProvisioning, "no stored credentials")
	eventbus.Publish(ctx, m.bus, eventbus.Portal.Scanned, eventbus.SourceJoinManager, eventbus.NetworkListEvent{
		Networks: networks,
	})
	return nil
}

// ExitProvisioning tears the access point down. Idempotent.
func (m *Manager) ExitProvisioning(ctx context.Context) error {
	if err := m.radio.StopAccessPoint(ctx); err != nil {
		return fmt.Errorf("netjoin: stop access point: %w", err)
	}
	return nil
}

// Connect attempts a station-mode join with the stored credentials. The
// attempt is bounded: one join request followed by at most
// cfg.JoinAttempts status polls at cfg.JoinInterval spacing. Exhausting
// the attempts returns a FatalReset that wipes the credentials — a
// headless node treats "can't join with stored creds" as "creds are bad",
// trading a false-positive wipe for guaranteed forward progress.
func (m *Manager) Connect(ctx context.Context, creds store.Credentials) error {
	m.setState(ctx, StateConnecting, "stored credentials present")

	if err := m.radio.Join(ctx, creds.SSID, creds.Password); err != nil {
		return fmt.Errorf("netjoin: issue join: %w", err)
	}

	for attempt := 1; attempt <= m.cfg.JoinAttempts; attempt++ {
		if m.radio.Status(ctx) == hal.LinkUp {
			m.setState(ctx, StateOperational, fmt.Sprintf("joined %q on attempt %d", creds.SSID, attempt))
			return nil
		}
		if attempt == m.cfg.JoinAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.cfg.JoinInterval):
		}
	}

	return &FatalReset{
		Reason:           fmt.Sprintf("join to %q failed after %d attempts", creds.SSID, m.cfg.JoinAttempts),
		ClearCredentials: true,
	}
}

// CheckLink runs the per-tick link maintenance branch and returns the
// resulting state. While Operational a down link moves to Reconnecting;
// while Reconnecting a restored link falls through to Operational, and
// otherwise at most one disconnect+rejoin attempt is issued per
// cfg.ReconnectEvery window. Callers skip tag polling whenever the
// returned state is not Operational.
func (m *Manager) CheckLink(ctx context.Context, creds store.Credentials) State {
	switch m.State() {
	case StateOperational:
		if m.radio.Status(ctx) != hal.LinkUp {
			m.setState(ctx, StateReconnecting, "link lost")
		}
	case StateReconnecting:
		if m.radio.Status(ctx) == hal.LinkUp {
			m.setState(ctx, StateOperational, "link restored")
			break
		}
		m.maybeReconnect(ctx, creds)
	}
	return m.State()
}

// maybeReconnect issues one non-blocking reconnect attempt if the interval
// floor has elapsed. No backoff growth, no attempt cap: the node retries
// indefinitely until the link returns.
func (m *Manager) maybeReconnect(ctx context.Context, creds store.Credentials) {
	now := m.clock.Now()

	m.mu.Lock()
	if !m.lastReconnect.IsZero() && now.Sub(m.lastReconnect) < m.cfg.ReconnectEvery {
		m.mu.Unlock()
		return
	}
	m.lastReconnect = now
	m.reconnects++
	attempt := m.reconnects
	m.mu.Unlock()

	log.Printf("[netjoin] reconnect attempt %d", attempt)
	if err := m.radio.Disconnect(ctx); err != nil {
		log.Printf("[netjoin] disconnect before rejoin: %v", err)
	}
	if err := m.radio.Join(ctx, creds.SSID, creds.Password); err != nil {
		log.Printf("[netjoin] rejoin: %v", err)
	}

	eventbus.Publish(ctx, m.bus, eventbus.Lifecycle.Reconnect, eventbus.SourceJoinManager, eventbus.ReconnectEvent{
		Attempt: attempt,
		At:      now,
	})
}
