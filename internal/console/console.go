// Package console exposes a line-oriented maintenance interface on a
// Unix socket. It is the local equivalent of holding the hardware
// reset button: an operator with shell access can inspect the node and
// wipe stored credentials without touching the radio.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nodegate-io/nodegate/internal/version"
)

// ResetRequester schedules a controller restart, optionally wiping
// stored credentials first.
type ResetRequester interface {
	RequestReset(reason string, clearCredentials bool, after time.Duration)
}

// StatusFunc reports a one-line status summary for the status command.
type StatusFunc func() string

// Console serves maintenance commands on a Unix socket. Commands are
// single lines, matched case-insensitively, one reply line each.
type Console struct {
	socketPath string
	status     StatusFunc
	resets     ResetRequester

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a console bound to socketPath.
func New(socketPath string, status StatusFunc, resets ResetRequester) *Console {
	return &Console{
		socketPath: socketPath,
		status:     status,
		resets:     resets,
	}
}

// Start listens on the socket and accepts connections.
func (c *Console) Start(ctx context.Context) error {
	if c.socketPath == "" {
		return errors.New("console: socket path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(c.socketPath), 0o755); err != nil {
		return fmt.Errorf("console: create socket directory: %w", err)
	}

	if err := os.Remove(c.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("console: remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("console: listen: %w", err)
	}

	if err := os.Chmod(c.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("console: set socket permissions: %w", err)
	}

	c.mu.Lock()
	c.listener = listener
	c.mu.Unlock()

	c.wg.Add(1)
	go c.acceptLoop(ctx, listener)

	log.Printf("[console] listening on %s", c.socketPath)
	return nil
}

// Shutdown closes the listener and waits for active connections.
func (c *Console) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	listener := c.listener
	c.listener = nil
	c.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	if err := os.Remove(c.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("console: remove socket: %w", err)
	}
	return nil
}

func (c *Console) acceptLoop(ctx context.Context, listener net.Listener) {
	defer c.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[console] accept: %v", err)
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleConnection(conn)
		}()
	}
}

func (c *Console) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply, quit := c.dispatch(scanner.Text())
		if reply != "" {
			fmt.Fprintln(conn, reply)
		}
		if quit {
			return
		}
	}
}

// dispatch executes one command line and returns the reply plus
// whether the connection should close.
func (c *Console) dispatch(line string) (string, bool) {
	cmd := strings.ToLower(strings.TrimSpace(line))
	switch cmd {
	case "":
		return "", false

	case "status":
		if c.status == nil {
			return "err status unavailable", false
		}
		return c.status(), false

	case "version":
		return version.String(), false

	case "forget":
		if c.resets == nil {
			return "err reset unavailable", false
		}
		log.Printf("[console] forget requested, wiping credentials")
		c.resets.RequestReset("operator forget", true, 0)
		return "ok credentials cleared, restarting", false

	case "quit", "exit":
		return "bye", true

	default:
		return fmt.Sprintf("err unknown command %q", cmd), false
	}
}
