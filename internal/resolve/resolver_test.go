package resolve

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResolveSuccess(t *testing.T) {
	r := New(WithLookup(func(ctx context.Context, host string) ([]string, error) {
		if host != "gate.example.net" {
			t.Fatalf("unexpected host: %q", host)
		}
		return []string{"203.0.113.9", "203.0.113.10"}, nil
	}))

	addr, ok := r.Resolve(context.Background(), "gate.example.net")
	if !ok || addr != "203.0.113.9" {
		t.Fatalf("unexpected result: addr=%q ok=%v", addr, ok)
	}
}

func TestResolveFailureIsNonFatal(t *testing.T) {
	r := New(WithLookup(func(ctx context.Context, host string) ([]string, error) {
		return nil, errors.New("nxdomain")
	}))

	if _, ok := r.Resolve(context.Background(), "missing.example.net"); ok {
		t.Fatal("expected resolution failure")
	}
}

func TestResolveEmptyHostname(t *testing.T) {
	r := New()
	if _, ok := r.Resolve(context.Background(), ""); ok {
		t.Fatal("empty hostname must not resolve")
	}
}

func TestResolveTimeoutApplied(t *testing.T) {
	r := New(
		WithTimeout(10*time.Millisecond),
		WithLookup(func(ctx context.Context, host string) ([]string, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatal("expected deadline on lookup context")
			}
			if time.Until(deadline) > 50*time.Millisecond {
				t.Fatalf("deadline too far in the future: %v", time.Until(deadline))
			}
			return []string{"198.51.100.1"}, nil
		}),
	)

	if _, ok := r.Resolve(context.Background(), "gate.example.net"); !ok {
		t.Fatal("expected success")
	}
}
