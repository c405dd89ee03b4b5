// Package resolve performs the one-shot backend endpoint lookup issued
// when the node enters the operational state.
package resolve

import (
	"context"
	"log"
	"net"
	"time"
)

const defaultTimeout = 3 * time.Second

// LookupFunc matches net.Resolver.LookupHost.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver resolves the backend hostname once per operational session.
// Failure is non-fatal: the notification path stays disabled until the
// next session.
type Resolver struct {
	lookup  LookupFunc
	timeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup overrides the lookup function (for tests).
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.lookup = fn
		}
	}
}

// WithTimeout overrides the lookup timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New builds a resolver backed by the system resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		lookup:  net.DefaultResolver.LookupHost,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks the hostname up with a bounded single attempt. The second
// return value reports success; on failure the cause is logged and the
// caller proceeds without a notification endpoint.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (string, bool) {
	if hostname == "" {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.lookup(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		log.Printf("[resolve] lookup %q failed: %v", hostname, err)
		return "", false
	}
	return addrs[0], true
}
