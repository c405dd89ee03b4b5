package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/nodegate-io/nodegate/internal/config/store"
	"github.com/nodegate-io/nodegate/internal/dedup"
	"github.com/nodegate-io/nodegate/internal/dnscapture"
	"github.com/nodegate-io/nodegate/internal/eventbus"
	"github.com/nodegate-io/nodegate/internal/netjoin"
	"github.com/nodegate-io/nodegate/internal/portal"
)

// runBootSession executes one boot-to-reset lifecycle: load credentials,
// branch into provisioning or station mode, and drive the tick loop
// until a reset request or cancellation ends the session.
func (d *Daemon) runBootSession(ctx context.Context) error {
	creds, err := d.store.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("daemon: load credentials: %w", err)
	}

	manager := netjoin.New(d.radio, d.bus,
		netjoin.WithClock(d.clock),
		netjoin.WithConfig(d.joinCfg))
	d.setManager(manager)

	// Fresh gate per session: a restart forgets the remembered tag the
	// same way a hardware reboot would.
	gate := dedup.New()

	if creds.Empty() {
		return d.runProvisioning(ctx, manager)
	}

	d.metrics.JoinAttempts.Inc()
	if err := manager.Connect(ctx, creds); err != nil {
		d.metrics.LifecycleState.Set(float64(manager.State()))
		return err
	}
	d.metrics.LifecycleState.Set(float64(manager.State()))

	d.configureNotifier(ctx)
	return d.runOperational(ctx, manager, gate, creds)
}

// runProvisioning serves the captive portal until the operator submits
// credentials (which schedules a reset) or the daemon stops.
func (d *Daemon) runProvisioning(ctx context.Context, manager *netjoin.Manager) error {
	if err := manager.EnterProvisioning(ctx); err != nil {
		return err
	}
	d.metrics.LifecycleState.Set(float64(manager.State()))

	dns := d.startDNSCapture(ctx)

	handler := portal.NewHandler(d.store, d, d.bus, manager.Networks())
	d.server.SetPortal(handler.Routes())
	d.server.SetPortalMode(true)

	defer func() {
		d.server.SetPortalMode(false)
		d.server.SetPortal(nil)
		if dns != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			dns.Shutdown(shutdownCtx)
			cancel()
		}
		if err := manager.ExitProvisioning(context.Background()); err != nil {
			log.Printf("[daemon] stop access point: %v", err)
		}
	}()

	log.Printf("[daemon] provisioning: portal up, %d networks visible", len(manager.Networks()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case req := <-d.resetCh:
		return &netjoin.FatalReset{Reason: req.reason, ClearCredentials: req.clearCredentials}
	}
}

// startDNSCapture answers every DNS query with the AP's own address so
// captive-portal probes land on the portal. Failure to bind (typically
// a privileged port) degrades to portal-by-IP only.
func (d *Daemon) startDNSCapture(ctx context.Context) *dnscapture.Responder {
	if d.dnsAddr == "" {
		return nil
	}
	target := net.ParseIP(d.radio.Address())
	if target == nil {
		log.Printf("[daemon] AP address %q is not an IP, skipping DNS capture", d.radio.Address())
		return nil
	}

	dns := dnscapture.New(d.dnsAddr, target)
	if err := dns.Start(ctx); err != nil {
		log.Printf("[daemon] dns capture unavailable: %v", err)
		return nil
	}
	return dns
}

// runOperational drives the cooperative tick loop: each tick performs
// link maintenance first and polls the reader only while Operational.
func (d *Daemon) runOperational(ctx context.Context, manager *netjoin.Manager, gate *dedup.Gate, creds store.Credentials) error {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-d.resetCh:
			return &netjoin.FatalReset{Reason: req.reason, ClearCredentials: req.clearCredentials}

		case <-ticker.C:
			state := manager.CheckLink(ctx, creds)
			d.metrics.LifecycleState.Set(float64(state))
			if state != netjoin.StateOperational {
				// Reconnecting ticks are spent entirely on the link.
				continue
			}
			d.pollReader(ctx, gate)
		}
	}
}

func (d *Daemon) pollReader(ctx context.Context, gate *dedup.Gate) {
	id, present, err := d.reader.TryRead(ctx)
	if err != nil {
		log.Printf("[daemon] reader poll: %v", err)
		return
	}
	if present {
		d.metrics.TagReads.Inc()
	}

	emit, ok := gate.Observe(id, present)
	if !ok {
		if present {
			d.metrics.TagsSuppressed.Inc()
		}
		return
	}

	d.metrics.TagsAdmitted.Inc()
	eventbus.Publish(ctx, d.bus, eventbus.Tags.Admitted, eventbus.SourceController, eventbus.TagEvent{
		TagID:  string(emit),
		SeenAt: time.Now(),
	})
}

// configureNotifier resolves the backend endpoint once per operational
// session. Resolution failure disables notifications until the next
// boot; reads are still recorded locally.
func (d *Daemon) configureNotifier(ctx context.Context) {
	settingsCtx, cancel := context.WithTimeout(ctx, storeQueryTimeout)
	settings, err := d.store.LoadSettings(settingsCtx, SettingNotifyHost, SettingNotifyPort)
	cancel()
	if err != nil {
		log.Printf("[daemon] load notify settings: %v", err)
		settings = nil
	}

	host := settings[SettingNotifyHost]
	if host == "" {
		host = DefaultNotifyHost
	}
	port := settings[SettingNotifyPort]
	if port == "" {
		port = DefaultNotifyPort
	}

	addr, ok := d.resolver.Resolve(ctx, host)
	if !ok {
		log.Printf("[daemon] endpoint %q unresolved, notifications disabled this session", host)
		d.notifier.ClearEndpoint()
		return
	}

	base := "http://" + net.JoinHostPort(addr, port)
	d.notifier.SetEndpoint(base, d.radio.Address())
	log.Printf("[daemon] notifying %s as %s", base, d.radio.Address())
}
