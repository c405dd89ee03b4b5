package hal

import (
	"context"
	"testing"
)

func TestSimRadioJoinScript(t *testing.T) {
	r := NewSimRadio(WithJoinScript(false, false, true))
	ctx := context.Background()

	for i, want := range []LinkStatus{LinkDown, LinkDown, LinkUp, LinkUp} {
		if err := r.Join(ctx, "net", "pw"); err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
		if got := r.Status(ctx); got != want {
			t.Fatalf("attempt %d: expected status %v, got %v", i, want, got)
		}
	}

	if r.JoinCalls() != 4 {
		t.Fatalf("expected 4 join calls, got %d", r.JoinCalls())
	}
}

func TestSimRadioAccessPointAddress(t *testing.T) {
	r := NewSimRadio(WithAddresses("10.0.0.5", "192.168.4.1"))
	ctx := context.Background()

	if r.Address() != "10.0.0.5" {
		t.Fatalf("unexpected station address: %s", r.Address())
	}

	if err := r.StartAccessPoint(ctx, "setup", "letmein"); err != nil {
		t.Fatalf("StartAccessPoint: %v", err)
	}
	if r.Address() != "192.168.4.1" {
		t.Fatalf("expected AP address while hosting, got %s", r.Address())
	}
	if err := r.StartAccessPoint(ctx, "setup", "letmein"); err == nil {
		t.Fatal("expected second StartAccessPoint to fail")
	}

	if err := r.StopAccessPoint(ctx); err != nil {
		t.Fatalf("StopAccessPoint: %v", err)
	}
	if r.AccessPointActive() {
		t.Fatal("expected AP inactive after stop")
	}
}

func TestSimReaderQueue(t *testing.T) {
	r := NewSimReader()
	ctx := context.Background()

	r.QueueTag("04A3FF")
	r.QueueEmpty()

	id, ok, err := r.TryRead(ctx)
	if err != nil || !ok || id != "04A3FF" {
		t.Fatalf("unexpected first read: id=%q ok=%v err=%v", id, ok, err)
	}

	_, ok, err = r.TryRead(ctx)
	if err != nil || ok {
		t.Fatalf("expected empty read, got ok=%v err=%v", ok, err)
	}

	// Drained queue keeps reading empty.
	_, ok, _ = r.TryRead(ctx)
	if ok {
		t.Fatal("expected drained reader to report no tag")
	}
}
