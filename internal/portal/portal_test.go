package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nodegate-io/nodegate/internal/config/store"
	"github.com/nodegate-io/nodegate/internal/eventbus"
)

type fakeSaver struct {
	mu    sync.Mutex
	saved []store.Credentials
	err   error
}

func (f *fakeSaver) SaveCredentials(ctx context.Context, creds store.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, creds)
	return nil
}

type fakeResets struct {
	mu       sync.Mutex
	requests []resetRequest
}

type resetRequest struct {
	reason     string
	clearCreds bool
	after      time.Duration
}

func (f *fakeResets) RequestReset(reason string, clearCredentials bool, after time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, resetRequest{reason: reason, clearCreds: clearCredentials, after: after})
}

func newTestHandler(t *testing.T, networks []string) (*Handler, *fakeSaver, *fakeResets) {
	t.Helper()
	saver := &fakeSaver{}
	resets := &fakeResets{}
	h := NewHandler(saver, resets, nil, networks)
	return h, saver, resets
}

func TestFormListsScannedNetworks(t *testing.T) {
	h, _, _ := newTestHandler(t, []string{"home", "lab"})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, ssid := range []string{"home", "lab"} {
		if !strings.Contains(body, ">"+ssid+"<") {
			t.Fatalf("form missing network %q:\n%s", ssid, body)
		}
	}
}

func TestFormEscapesUntrustedSSIDs(t *testing.T) {
	h, _, _ := newTestHandler(t, []string{`<script>alert(1)</script>`})

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Fatal("SSID rendered unescaped")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped SSID in body:\n%s", body)
	}
}

func TestUnmappedPathServesForm(t *testing.T) {
	h, _, _ := newTestHandler(t, []string{"home"})

	for _, path := range []string{"/generate_204", "/hotspot-detect.html", "/anything/else"} {
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("path %s: expected 200 captive fallback, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Network setup") {
			t.Fatalf("path %s: expected form body", path)
		}
	}
}

func postForm(h *Handler, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/save", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestSubmitPersistsAndSchedulesRestart(t *testing.T) {
	bus := eventbus.New()
	saver := &fakeSaver{}
	resets := &fakeResets{}
	h := NewHandler(saver, resets, bus, []string{"home"}, WithFlushDelay(100*time.Millisecond))

	sub := eventbus.SubscribeTo(bus, eventbus.Portal.Submitted)
	defer sub.Close()

	rec := postForm(h, url.Values{"ssid": {"home"}, "password": {"hunter2"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "restarting") {
		t.Fatalf("expected confirmation body, got:\n%s", rec.Body.String())
	}

	if len(saver.saved) != 1 || saver.saved[0].SSID != "home" || saver.saved[0].Password != "hunter2" {
		t.Fatalf("unexpected saved credentials: %+v", saver.saved)
	}

	if len(resets.requests) != 1 {
		t.Fatalf("expected one reset request, got %d", len(resets.requests))
	}
	req := resets.requests[0]
	if req.clearCreds {
		t.Fatal("provisioning restart must not clear credentials")
	}
	if req.after != 100*time.Millisecond {
		t.Fatalf("unexpected flush delay: %v", req.after)
	}

	select {
	case env := <-sub.C():
		if env.Payload.SSID != "home" || env.Payload.SessionID == "" {
			t.Fatalf("unexpected provision event: %+v", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for provision event")
	}
}

func TestSubmitMissingFieldKeepsPortalUp(t *testing.T) {
	cases := []struct {
		name   string
		values url.Values
	}{
		{"missing ssid", url.Values{"password": {"pw"}}},
		{"missing password", url.Values{"ssid": {"home"}}},
		{"both missing", url.Values{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, saver, resets := newTestHandler(t, []string{"home"})

			rec := postForm(h, tc.values)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "Submission rejected") {
				t.Fatalf("expected error page, got:\n%s", rec.Body.String())
			}
			if len(saver.saved) != 0 {
				t.Fatal("invalid submission must not persist credentials")
			}
			if len(resets.requests) != 0 {
				t.Fatal("invalid submission must not restart")
			}
		})
	}
}

func TestSaveViaGetFallsBackToForm(t *testing.T) {
	h, saver, _ := newTestHandler(t, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/save", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Network setup") {
		t.Fatalf("expected captive fallback for GET /save, got %d", rec.Code)
	}
	if len(saver.saved) != 0 {
		t.Fatal("GET must not persist anything")
	}
}
