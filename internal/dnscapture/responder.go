// Package dnscapture answers every DNS query with the access point's own
// address, redirecting captive-portal probes to the provisioning form.
package dnscapture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/net/dns/dnsmessage"
)

const answerTTL = 60

// Responder is the wildcard DNS service run while provisioning.
type Responder struct {
	listenAddr string
	target     net.IP

	mu   sync.Mutex
	conn *net.UDPConn
	wg   sync.WaitGroup
}

// New builds a responder that answers every A query with target.
// listenAddr is a UDP address such as ":53"; tests pass ":0".
func New(listenAddr string, target net.IP) *Responder {
	return &Responder{
		listenAddr: listenAddr,
		target:     target,
	}
}

// Start binds the UDP socket and begins answering queries.
func (r *Responder) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("dnscapture: resolve listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("dnscapture: listen: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	r.wg.Add(1)
	go r.serve(ctx, conn)

	log.Printf("[dnscapture] answering all queries with %s on %s", r.target, conn.LocalAddr())
	return nil
}

// Shutdown closes the socket and waits for the serve loop.
func (r *Responder) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound UDP address, or nil before Start.
func (r *Responder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

func (r *Responder) serve(ctx context.Context, conn *net.UDPConn) {
	defer r.wg.Done()

	buf := make([]byte, 512)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Printf("[dnscapture] read: %v", err)
			continue
		}

		reply, ok := buildReply(buf[:n], r.target)
		if !ok {
			continue
		}
		if _, err := conn.WriteToUDP(reply, remote); err != nil {
			log.Printf("[dnscapture] write to %s: %v", remote, err)
		}
	}
}

// buildReply answers the first question of the query. A queries get the
// target address; other types get an empty authoritative answer so clients
// move on quickly.
func buildReply(query []byte, target net.IP) ([]byte, bool) {
	var parser dnsmessage.Parser
	header, err := parser.Start(query)
	if err != nil {
		return nil, false
	}
	question, err := parser.Question()
	if err != nil {
		return nil, false
	}

	builder := dnsmessage.NewBuilder(nil, dnsmessage.Header{
		ID:            header.ID,
		Response:      true,
		Authoritative: true,
		RCode:         dnsmessage.RCodeSuccess,
	})
	builder.EnableCompression()

	if err := builder.StartQuestions(); err != nil {
		return nil, false
	}
	if err := builder.Question(question); err != nil {
		return nil, false
	}

	if question.Type == dnsmessage.TypeA {
		ip4 := target.To4()
		if ip4 == nil {
			return nil, false
		}
		if err := builder.StartAnswers(); err != nil {
			return nil, false
		}
		var a [4]byte
		copy(a[:], ip4)
		err = builder.AResource(dnsmessage.ResourceHeader{
			Name:  question.Name,
			Type:  dnsmessage.TypeA,
			Class: dnsmessage.ClassINET,
			TTL:   answerTTL,
		}, dnsmessage.AResource{A: a})
		if err != nil {
			return nil, false
		}
	}

	reply, err := builder.Finish()
	if err != nil {
		return nil, false
	}
	return reply, true
}
