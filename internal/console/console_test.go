package console

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedReset struct {
	reason           string
	clearCredentials bool
	after            time.Duration
}

type fakeResetter struct {
	mu     sync.Mutex
	resets []recordedReset
}

func (f *fakeResetter) RequestReset(reason string, clearCredentials bool, after time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, recordedReset{reason, clearCredentials, after})
}

func (f *fakeResetter) all() []recordedReset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedReset(nil), f.resets...)
}

func startTestConsole(t *testing.T, status StatusFunc, resets ResetRequester) (*Console, net.Conn) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "console.sock")
	c := New(socketPath, status, resets)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Shutdown(ctx)
	})

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return c, conn
}

func roundTrip(t *testing.T, conn net.Conn, cmd string) string {
	t.Helper()
	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		t.Fatalf("write %q: %v", cmd, err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read reply to %q: %v", cmd, err)
	}
	return strings.TrimSpace(reply)
}

func TestStatusCommand(t *testing.T) {
	_, conn := startTestConsole(t, func() string { return "state=operational tags=3" }, nil)

	if got := roundTrip(t, conn, "status"); got != "state=operational tags=3" {
		t.Fatalf("status reply = %q", got)
	}
}

func TestForgetCommandIsCaseInsensitive(t *testing.T) {
	resets := &fakeResetter{}
	_, conn := startTestConsole(t, nil, resets)

	reader := bufio.NewReader(conn)
	for _, cmd := range []string{"forget", "FORGET", "  Forget  "} {
		if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		reply, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !strings.HasPrefix(reply, "ok") {
			t.Fatalf("%q reply = %q, want ok prefix", cmd, reply)
		}
	}

	all := resets.all()
	if len(all) != 3 {
		t.Fatalf("resets = %d, want 3", len(all))
	}
	for _, r := range all {
		if !r.clearCredentials {
			t.Fatalf("reset %+v did not request credential wipe", r)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, conn := startTestConsole(t, nil, nil)

	if got := roundTrip(t, conn, "reboot"); !strings.HasPrefix(got, "err unknown command") {
		t.Fatalf("reply = %q", got)
	}
}

func TestDispatchTable(t *testing.T) {
	resets := &fakeResetter{}
	c := New("", func() string { return "s" }, resets)

	tests := []struct {
		line     string
		want     string
		wantQuit bool
	}{
		{"status", "s", false},
		{"STATUS", "s", false},
		{"", "", false},
		{"quit", "bye", true},
		{"exit", "bye", true},
	}
	for _, tt := range tests {
		got, quit := c.dispatch(tt.line)
		if got != tt.want || quit != tt.wantQuit {
			t.Errorf("dispatch(%q) = (%q, %v), want (%q, %v)", tt.line, got, quit, tt.want, tt.wantQuit)
		}
	}
}
