// Package hal defines the capability interfaces the controller drives:
// the wireless radio, the proximity tag reader, and the feedback actuator.
// Real hardware bindings and the simulated implementations used in tests
// and --sim mode both satisfy these interfaces.
package hal

import (
	"context"
)

// TagID is the hexadecimal, uppercase, separator-free encoding of a
// hardware-assigned tag identifier.
type TagID string

// LinkStatus reports the radio's station-mode association state.
type LinkStatus int

const (
	LinkDown LinkStatus = iota
	LinkJoining
	LinkUp
)

func (s LinkStatus) String() string {
	switch s {
	case LinkUp:
		return "up"
	case LinkJoining:
		return "joining"
	default:
		return "down"
	}
}

// Radio is the wireless capability: station-mode join, status checks,
// network scanning, and access-point hosting for provisioning.
type Radio interface {
	// Join begins a station-mode association attempt. It returns once the
	// attempt has been issued; progress is observed via Status.
	Join(ctx context.Context, ssid, password string) error

	// Status reports the current link state.
	Status(ctx context.Context) LinkStatus

	// Scan enumerates visible network SSIDs.
	Scan(ctx context.Context) ([]string, error)

	// StartAccessPoint hosts a provisioning access point.
	StartAccessPoint(ctx context.Context, ssid, password string) error

	// StopAccessPoint tears the access point down. Idempotent.
	StopAccessPoint(ctx context.Context) error

	// Disconnect drops the current station-mode association.
	Disconnect(ctx context.Context) error

	// Address returns the device's current network address, or the access
	// point address while hosting one.
	Address() string
}

// Reader is the proximity reader capability. TryRead polls once and never
// blocks: ok is false when no tag is in range, which is a normal outcome,
// not an error.
type Reader interface {
	TryRead(ctx context.Context) (id TagID, ok bool, err error)
}

// PulseKind distinguishes actuator feedback patterns.
type PulseKind int

const (
	PulseReady PulseKind = iota
	PulseTag
	PulseError
)

func (k PulseKind) String() string {
	switch k {
	case PulseTag:
		return "tag"
	case PulseError:
		return "error"
	default:
		return "ready"
	}
}

// Actuator drives the LED/buzzer feedback channel. Pulse is fire-and-forget
// and must not block the caller.
type Actuator interface {
	Pulse(kind PulseKind)
}
