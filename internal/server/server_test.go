package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nodegate-io/nodegate/internal/eventbus"
)

func TestHealthz(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("body = %q, want ok", rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil, WithStatus(func() Status {
		return Status{Node: "lab-door", State: "operational", Version: "dev"}
	}))

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Node != "lab-door" || status.State != "operational" {
		t.Fatalf("status = %+v", status)
	}
}

func TestCaptiveFallbackServesPortalOnAnyPath(t *testing.T) {
	portal := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "setup form")
	})
	s := New("127.0.0.1:0", nil, nil, WithPortal(portal))
	s.SetPortalMode(true)

	for _, path := range []string{"/", "/generate_204", "/hotspot-detect.html", "/library/test/success.html"} {
		rec := httptest.NewRecorder()
		s.handleRoot(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "setup form") {
			t.Fatalf("%s: body = %q", path, rec.Body.String())
		}
	}
}

func TestUnknownPathWithoutPortalMode(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil, WithPortal(http.NotFoundHandler()))

	rec := httptest.NewRecorder()
	s.handleRoot(rec, httptest.NewRequest(http.MethodGet, "/generate_204", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventsFeedMirrorsBus(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	hub := NewHub(bus)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	defer hub.Shutdown(context.Background())

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleEvents))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for registration before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	eventbus.Publish(context.Background(), bus, eventbus.Tags.Admitted, eventbus.SourceController, eventbus.TagEvent{
		TagID:  "04A3FF",
		SeenAt: time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != string(eventbus.TopicTagsAdmitted) {
		t.Fatalf("type = %q, want %q", msg.Type, eventbus.TopicTagsAdmitted)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %T", msg.Data)
	}
	if data["TagID"] != "04A3FF" {
		t.Fatalf("tag = %v", data["TagID"])
	}
}

func TestServerStartShutdown(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	s := New("127.0.0.1:0", NewHub(bus), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
