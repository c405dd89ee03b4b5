package hal

import (
	"context"
	"fmt"
	"sync"
)

// SimRadio is an in-memory Radio used by --sim mode and tests. Join outcomes
// are scripted: each call to Join consumes the next entry of the join script,
// and Status reports LinkUp only after a successful scripted join.
type SimRadio struct {
	mu sync.Mutex

	joinScript []bool // outcome per join attempt; exhausted script repeats the last entry
	joinCalls  int
	linkUp     bool
	apActive   bool
	networks   []string
	address    string
	apAddress  string
	lastSSID   string
	lastPass   string
}

// SimRadioOption configures a SimRadio.
type SimRadioOption func(*SimRadio)

// WithJoinScript sets the outcome of successive join attempts.
func WithJoinScript(outcomes ...bool) SimRadioOption {
	return func(r *SimRadio) { r.joinScript = outcomes }
}

// WithVisibleNetworks sets the SSIDs returned by Scan.
func WithVisibleNetworks(ssids ...string) SimRadioOption {
	return func(r *SimRadio) { r.networks = ssids }
}

// WithAddresses sets the station and access-point addresses.
func WithAddresses(station, ap string) SimRadioOption {
	return func(r *SimRadio) {
		r.address = station
		r.apAddress = ap
	}
}

// NewSimRadio builds a simulated radio. With no options every join succeeds.
func NewSimRadio(opts ...SimRadioOption) *SimRadio {
	r := &SimRadio{
		joinScript: []bool{true},
		networks:   []string{"sim-net"},
		address:    "10.0.0.42",
		apAddress:  "192.168.4.1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SimRadio) Join(ctx context.Context, ssid, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.joinCalls
	if idx >= len(r.joinScript) {
		idx = len(r.joinScript) - 1
	}
	r.joinCalls++
	r.lastSSID = ssid
	r.lastPass = password
	r.linkUp = r.joinScript[idx]
	return nil
}

func (r *SimRadio) Status(ctx context.Context) LinkStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linkUp {
		return LinkUp
	}
	return LinkDown
}

func (r *SimRadio) Scan(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.networks))
	copy(out, r.networks)
	return out, nil
}

func (r *SimRadio) StartAccessPoint(ctx context.Context, ssid, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.apActive {
		return fmt.Errorf("hal: access point already active")
	}
	r.apActive = true
	return nil
}

func (r *SimRadio) StopAccessPoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apActive = false
	return nil
}

func (r *SimRadio) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linkUp = false
	return nil
}

func (r *SimRadio) Address() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.apActive {
		return r.apAddress
	}
	return r.address
}

// SetLinkUp forces the link state, simulating an outage or recovery.
func (r *SimRadio) SetLinkUp(up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linkUp = up
}

// JoinCalls reports how many join attempts were issued.
func (r *SimRadio) JoinCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinCalls
}

// LastJoin returns the credentials of the most recent join attempt.
func (r *SimRadio) LastJoin() (ssid, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSSID, r.lastPass
}

// AccessPointActive reports whether the provisioning AP is hosted.
func (r *SimRadio) AccessPointActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apActive
}

// SimReader feeds scripted tag reads to the controller. Each TryRead
// consumes one entry; an empty queue reads as "no tag present".
type SimReader struct {
	mu    sync.Mutex
	queue []simRead
}

type simRead struct {
	id      TagID
	present bool
}

// NewSimReader builds an empty simulated reader.
func NewSimReader() *SimReader {
	return &SimReader{}
}

// QueueTag schedules a tag-present read.
func (r *SimReader) QueueTag(id TagID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, simRead{id: id, present: true})
}

// QueueEmpty schedules a no-tag read.
func (r *SimReader) QueueEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, simRead{})
}

func (r *SimReader) TryRead(ctx context.Context) (TagID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return "", false, nil
	}
	read := r.queue[0]
	r.queue = r.queue[1:]
	return read.id, read.present, nil
}

// SimActuator records pulses for assertions.
type SimActuator struct {
	mu     sync.Mutex
	pulses []PulseKind
}

// NewSimActuator builds a recording actuator.
func NewSimActuator() *SimActuator {
	return &SimActuator{}
}

func (a *SimActuator) Pulse(kind PulseKind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pulses = append(a.pulses, kind)
}

// Pulses returns the recorded pulse sequence.
func (a *SimActuator) Pulses() []PulseKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PulseKind, len(a.pulses))
	copy(out, a.pulses)
	return out
}
