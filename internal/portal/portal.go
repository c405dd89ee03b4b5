// Package portal serves the captive provisioning form: every path renders
// the form, submissions persist credentials and schedule a controller
// restart.
package portal

import (
	"context"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nodegate-io/nodegate/internal/config/store"
	"github.com/nodegate-io/nodegate/internal/eventbus"
)

// Sub-second delay between a successful submission and the restart, so the
// HTTP response can flush before the session is torn down.
const defaultFlushDelay = 500 * time.Millisecond

// ValidationError reports a missing form field.
type ValidationError struct {
	Field string
}

func (e ValidationError) Error() string {
	return "portal: missing field: " + e.Field
}

// CredentialSaver persists submitted credentials.
type CredentialSaver interface {
	SaveCredentials(ctx context.Context, creds store.Credentials) error
}

// ResetRequester schedules a controller restart. after lets the HTTP
// response flush first.
type ResetRequester interface {
	RequestReset(reason string, clearCredentials bool, after time.Duration)
}

// Handler answers the captive-portal HTTP surface for one provisioning
// session.
type Handler struct {
	saver      CredentialSaver
	resets     ResetRequester
	bus        *eventbus.Bus
	networks   []string
	sessionID  string
	flushDelay time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithFlushDelay overrides the response-flush delay before restart.
func WithFlushDelay(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.flushDelay = d
		}
	}
}

// NewHandler builds the provisioning handler. networks is the bounded SSID
// list captured when provisioning started; it is rendered as selectable
// options and never mutated.
func NewHandler(saver CredentialSaver, resets ResetRequester, bus *eventbus.Bus, networks []string, opts ...Option) *Handler {
	h := &Handler{
		saver:      saver,
		resets:     resets,
		bus:        bus,
		networks:   networks,
		sessionID:  uuid.NewString(),
		flushDelay: defaultFlushDelay,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the portal's HTTP handler. Unmapped paths answer with the
// form (captive-portal fallback), never a 404.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/save", h.handleSave)
	mux.HandleFunc("/", h.handleForm)
	return mux
}

func (h *Handler) handleForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, http.StatusOK)
}

func (h *Handler) renderForm(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := formTemplate.Execute(w, formData{Networks: h.networks}); err != nil {
		log.Printf("[portal] render form: %v", err)
	}
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.renderForm(w, http.StatusOK)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderError(w, "could not parse submission")
		return
	}

	ssid := r.PostFormValue("ssid")
	password := r.PostFormValue("password")

	if err := validate(ssid, password); err != nil {
		log.Printf("[portal] rejected submission: %v", err)
		h.renderError(w, err.Error())
		return
	}

	ctx := r.Context()
	if err := h.saver.SaveCredentials(ctx, store.Credentials{SSID: ssid, Password: password}); err != nil {
		log.Printf("[portal] save credentials: %v", err)
		http.Error(w, "failed to store credentials", http.StatusInternalServerError)
		return
	}

	eventbus.PublishWithOpts(ctx, h.bus, eventbus.Portal.Submitted, eventbus.SourcePortal,
		eventbus.ProvisionEvent{SSID: ssid, SessionID: h.sessionID},
		eventbus.WithCorrelationID(h.sessionID),
	)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := savedTemplate.Execute(w, savedData{SSID: ssid}); err != nil {
		log.Printf("[portal] render confirmation: %v", err)
	}

	log.Printf("[portal] credentials stored for %q, restarting", ssid)
	h.resets.RequestReset("credentials provisioned", false, h.flushDelay)
}

func (h *Handler) renderError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	if err := errorTemplate.Execute(w, errorData{Message: message}); err != nil {
		log.Printf("[portal] render error page: %v", err)
	}
}

func validate(ssid, password string) error {
	if ssid == "" {
		return ValidationError{Field: "ssid"}
	}
	if password == "" {
		return ValidationError{Field: "password"}
	}
	return nil
}

type formData struct {
	Networks []string
}

type savedData struct {
	SSID string
}

type errorData struct {
	Message string
}

// SSIDs are untrusted external input rendered into markup; html/template
// escapes them in both the option list and the confirmation page.
var formTemplate = template.Must(template.New("form").Parse(`<!DOCTYPE html>
<html>
<head><meta name="viewport" content="width=device-width, initial-scale=1"><title>nodegate setup</title></head>
<body>
<h1>Network setup</h1>
<form method="POST" action="/save">
<label>Network
<select name="ssid">
{{range .Networks}}<option value="{{.}}">{{.}}</option>
{{end}}</select>
</label>
<label>Password <input type="password" name="password"></label>
<button type="submit">Save</button>
</form>
</body>
</html>
`))

var savedTemplate = template.Must(template.New("saved").Parse(`<!DOCTYPE html>
<html>
<body>
<h1>Saved</h1>
<p>Credentials for {{.SSID}} stored. The node is restarting and will join your network.</p>
</body>
</html>
`))

var errorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<body>
<h1>Submission rejected</h1>
<p>{{.Message}}</p>
<p><a href="/">Back to setup</a></p>
</body>
</html>
`))
