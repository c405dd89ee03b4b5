// Package daemon wires the node's services together and runs the
// lifecycle controller. A FatalReset from any component unwinds to the
// run loop, which performs the reset action and re-enters boot instead
// of rebooting hardware.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodegate-io/nodegate/internal/config"
	"github.com/nodegate-io/nodegate/internal/config/store"
	"github.com/nodegate-io/nodegate/internal/console"
	"github.com/nodegate-io/nodegate/internal/eventbus"
	"github.com/nodegate-io/nodegate/internal/hal"
	"github.com/nodegate-io/nodegate/internal/metric"
	"github.com/nodegate-io/nodegate/internal/netjoin"
	"github.com/nodegate-io/nodegate/internal/notify"
	"github.com/nodegate-io/nodegate/internal/resolve"
	noderuntime "github.com/nodegate-io/nodegate/internal/runtime"
	"github.com/nodegate-io/nodegate/internal/server"
	"github.com/nodegate-io/nodegate/internal/telemetry"
	"github.com/nodegate-io/nodegate/internal/version"
)

// Settings keys read from the configuration store.
const (
	SettingNotifyHost = "notify.host"
	SettingNotifyPort = "notify.port"
	SettingNATSURL    = "telemetry.nats_url"
)

// Defaults applied when a setting is absent.
const (
	DefaultNotifyHost = "nodegate-hub.local"
	DefaultNotifyPort = "8080"

	DefaultHTTPAddr     = ":8080"
	DefaultDNSAddr      = ":53"
	DefaultTickInterval = 250 * time.Millisecond
)

// storeQueryTimeout bounds store lookups issued outside the tick loop.
const storeQueryTimeout = 5 * time.Second

// Options groups the dependencies required to construct a Daemon.
type Options struct {
	Store    *store.Store
	Radio    hal.Radio
	Reader   hal.Reader
	Actuator hal.Actuator

	HTTPAddr     string
	DNSAddr      string // captive DNS listen address; "" disables the responder
	TickInterval time.Duration

	Clock      netjoin.Clock  // nil uses the system clock
	JoinConfig netjoin.Config // zero values fall back to netjoin defaults
	Resolver   *resolve.Resolver
}

type resetRequest struct {
	reason           string
	clearCredentials bool
}

// Daemon is the node controller process.
type Daemon struct {
	store    *store.Store
	bus      *eventbus.Bus
	metrics  *metric.Metrics
	radio    hal.Radio
	reader   hal.Reader
	actuator hal.Actuator
	resolver *resolve.Resolver
	notifier *notify.Service
	server   *server.Server

	host      *noderuntime.ServiceHost
	lifecycle *noderuntime.Lifecycle
	paths     config.NodePaths
	clock     netjoin.Clock
	joinCfg   netjoin.Config
	tick      time.Duration
	dnsAddr   string

	resetCh chan resetRequest

	mu      sync.Mutex
	manager *netjoin.Manager
	runErr  error
}

// New creates a daemon bound to the provided store and capabilities.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon: configuration store is required")
	}
	if opts.Radio == nil {
		return nil, errors.New("daemon: radio is required")
	}
	if opts.Reader == nil {
		return nil, errors.New("daemon: tag reader is required")
	}

	if opts.HTTPAddr == "" {
		opts.HTTPAddr = DefaultHTTPAddr
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Resolver == nil {
		opts.Resolver = resolve.New()
	}

	d := &Daemon{
		store:     opts.Store,
		bus:       eventbus.New(),
		metrics:   metric.New(),
		radio:     opts.Radio,
		reader:    opts.Reader,
		actuator:  opts.Actuator,
		resolver:  opts.Resolver,
		host:      noderuntime.NewServiceHost(),
		lifecycle: noderuntime.NewLifecycle(),
		paths:     config.GetNodePaths(opts.Store.NodeName()),
		clock:     opts.Clock,
		joinCfg:   opts.JoinConfig,
		tick:      opts.TickInterval,
		dnsAddr:   opts.DNSAddr,
		resetCh:   make(chan resetRequest, 1),
	}

	registry := prometheus.NewRegistry()
	if err := d.metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("daemon: register metrics: %w", err)
	}

	d.notifier = notify.NewService(d.bus, notify.NewClient(), opts.Store)

	hub := server.NewHub(d.bus)
	d.server = server.New(opts.HTTPAddr, hub,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		server.WithStatus(d.statusSnapshot))

	services := []struct {
		name string
		svc  noderuntime.Service
	}{
		{"notify", d.notifier},
		{"feedback", telemetry.NewFeedback(d.bus, opts.Actuator)},
		{"metrics_pump", newMetricsPump(d.bus, d.metrics)},
		{"http", d.server},
		{"console", console.New(d.paths.Socket, d.statusLine, d)},
	}
	for _, entry := range services {
		svc := entry.svc
		if err := d.host.Register(entry.name, func(ctx context.Context) (noderuntime.Service, error) {
			return svc, nil
		}); err != nil {
			return nil, err
		}
	}

	if err := d.registerNATSExport(); err != nil {
		return nil, err
	}

	return d, nil
}

// registerNATSExport adds the telemetry exporter when a broker URL is
// configured. Absent setting means no export.
func (d *Daemon) registerNATSExport() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	defer cancel()

	url, err := d.store.GetSetting(ctx, SettingNATSURL)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("daemon: read %s: %w", SettingNATSURL, err)
	}
	if url == "" {
		return nil
	}

	return d.host.Register("nats_export", func(ctx context.Context) (noderuntime.Service, error) {
		return telemetry.NewExporter(url, d.store.NodeName(), d.bus), nil
	})
}

// RequestReset schedules a controller restart. after lets callers flush
// an HTTP response before the portal is torn down. Implements the reset
// contract used by the portal and the console.
func (d *Daemon) RequestReset(reason string, clearCredentials bool, after time.Duration) {
	go func() {
		if after > 0 {
			select {
			case <-time.After(after):
			case <-d.lifecycle.Done():
				return
			}
		}
		select {
		case d.resetCh <- resetRequest{reason: reason, clearCredentials: clearCredentials}:
		default:
			// A reset is already pending; the first one wins.
		}
	}()
}

// Shutdown signals the daemon to stop.
func (d *Daemon) Shutdown() {
	d.lifecycle.Shutdown()
}

// Run starts the support services and drives boot sessions until the
// context is cancelled or an unrecoverable error occurs. Each FatalReset
// ends one boot session and starts the next.
func (d *Daemon) Run(ctx context.Context) error {
	if err := noderuntime.WritePIDFile(d.paths.PIDFile, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	defer noderuntime.RemovePIDFile(d.paths.PIDFile)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-d.lifecycle.Done()
		cancel()
	}()

	if err := d.host.Start(runCtx); err != nil {
		return fmt.Errorf("daemon: start services: %w", err)
	}
	d.watchHostErrors()

	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.host.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[daemon] service shutdown: %v", err)
		}
		stopCancel()
		d.bus.Shutdown()
	}()

	log.Printf("[daemon] nodegate %s starting, node %q", version.String(), d.store.NodeName())

	for {
		err := d.runBootSession(runCtx)

		var reset *netjoin.FatalReset
		switch {
		case err == nil:
			return d.getRunError()

		case errors.As(err, &reset):
			log.Printf("[daemon] restart: %s", reset.Reason)
			if reset.ClearCredentials {
				d.clearCredentials()
			}
			// Loop back to boot. The next session reloads credentials
			// and starts with a fresh dedup gate, as a reboot would.

		case errors.Is(err, context.Canceled):
			return d.getRunError()

		default:
			return err
		}
	}
}

func (d *Daemon) clearCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	defer cancel()
	if err := d.store.ClearCredentials(ctx); err != nil {
		log.Printf("[daemon] clear credentials: %v", err)
	} else {
		log.Printf("[daemon] stored credentials cleared")
	}
}

func (d *Daemon) watchHostErrors() {
	go func() {
		for err := range d.host.Errors() {
			if err == nil {
				continue
			}
			d.setRunError(err)
			log.Printf("[daemon] %v", err)
			d.lifecycle.Shutdown()
		}
	}()
}

func (d *Daemon) setRunError(err error) {
	d.mu.Lock()
	if d.runErr == nil {
		d.runErr = err
	}
	d.mu.Unlock()
}

func (d *Daemon) getRunError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

func (d *Daemon) setManager(m *netjoin.Manager) {
	d.mu.Lock()
	d.manager = m
	d.mu.Unlock()
}

func (d *Daemon) currentManager() *netjoin.Manager {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manager
}

func (d *Daemon) currentState() netjoin.State {
	if m := d.currentManager(); m != nil {
		return m.State()
	}
	return netjoin.StateUnprovisioned
}

func (d *Daemon) statusSnapshot() server.Status {
	return server.Status{
		Node:    d.store.NodeName(),
		State:   d.currentState().String(),
		Version: version.String(),
	}
}

func (d *Daemon) statusLine() string {
	reconnects := 0
	if m := d.currentManager(); m != nil {
		reconnects = m.Reconnects()
	}
	return fmt.Sprintf("state=%s reconnects=%d notify=%t version=%s",
		d.currentState(), reconnects, d.notifier.Enabled(), version.String())
}
