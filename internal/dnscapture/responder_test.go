package dnscapture

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/net/dns/dnsmessage"
)

func buildQuery(t *testing.T, id uint16, name string, qtype dnsmessage.Type) []byte {
	t.Helper()

	builder := dnsmessage.NewBuilder(nil, dnsmessage.Header{ID: id, RecursionDesired: true})
	if err := builder.StartQuestions(); err != nil {
		t.Fatalf("StartQuestions: %v", err)
	}
	err := builder.Question(dnsmessage.Question{
		Name:  dnsmessage.MustNewName(name),
		Type:  qtype,
		Class: dnsmessage.ClassINET,
	})
	if err != nil {
		t.Fatalf("Question: %v", err)
	}
	query, err := builder.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return query
}

func TestBuildReplyAnswersEveryNameWithTarget(t *testing.T) {
	target := net.IPv4(192, 168, 4, 1)

	for _, name := range []string{"example.com.", "connectivitycheck.gstatic.com.", "totally.made.up."} {
		query := buildQuery(t, 0x1234, name, dnsmessage.TypeA)

		reply, ok := buildReply(query, target)
		if !ok {
			t.Fatalf("expected reply for %s", name)
		}

		var parser dnsmessage.Parser
		header, err := parser.Start(reply)
		if err != nil {
			t.Fatalf("parse reply: %v", err)
		}
		if !header.Response || header.ID != 0x1234 {
			t.Fatalf("unexpected header: %+v", header)
		}
		if err := parser.SkipAllQuestions(); err != nil {
			t.Fatalf("SkipAllQuestions: %v", err)
		}
		if _, err := parser.AnswerHeader(); err != nil {
			t.Fatalf("expected A answer for %s: %v", name, err)
		}
		if _, err := parser.AResource(); err != nil {
			t.Fatalf("AResource for %s: %v", name, err)
		}
	}
}

func TestBuildReplyAAnswerCarriesTargetAddress(t *testing.T) {
	target := net.IPv4(192, 168, 4, 1)
	query := buildQuery(t, 7, "portal.test.", dnsmessage.TypeA)

	reply, ok := buildReply(query, target)
	if !ok {
		t.Fatal("expected reply")
	}

	var parser dnsmessage.Parser
	if _, err := parser.Start(reply); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := parser.SkipAllQuestions(); err != nil {
		t.Fatalf("SkipAllQuestions: %v", err)
	}
	hdr, err := parser.AnswerHeader()
	if err != nil {
		t.Fatalf("AnswerHeader: %v", err)
	}
	if hdr.TTL != answerTTL {
		t.Fatalf("unexpected TTL: %d", hdr.TTL)
	}
	a, err := parser.AResource()
	if err != nil {
		t.Fatalf("AResource: %v", err)
	}
	if got := net.IP(a.A[:]); !got.Equal(target) {
		t.Fatalf("expected %s, got %s", target, got)
	}
}

func TestBuildReplyNonAQueryHasNoAnswer(t *testing.T) {
	query := buildQuery(t, 9, "example.com.", dnsmessage.TypeAAAA)

	reply, ok := buildReply(query, net.IPv4(192, 168, 4, 1))
	if !ok {
		t.Fatal("expected reply")
	}

	var parser dnsmessage.Parser
	if _, err := parser.Start(reply); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := parser.SkipAllQuestions(); err != nil {
		t.Fatalf("SkipAllQuestions: %v", err)
	}
	if _, err := parser.AnswerHeader(); err != dnsmessage.ErrSectionDone {
		t.Fatalf("expected empty answer section, got %v", err)
	}
}

func TestBuildReplyRejectsGarbage(t *testing.T) {
	if _, ok := buildReply([]byte{0x01, 0x02}, net.IPv4(192, 168, 4, 1)); ok {
		t.Fatal("expected garbage query rejected")
	}
}

func TestResponderEndToEnd(t *testing.T) {
	target := net.IPv4(192, 168, 4, 1)
	responder := New("127.0.0.1:0", target)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := responder.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer responder.Shutdown(context.Background())

	conn, err := net.Dial("udp", responder.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write(buildQuery(t, 42, "captive.example.", dnsmessage.TypeA)); err != nil {
		t.Fatalf("write query: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}

	var parser dnsmessage.Parser
	header, err := parser.Start(buf[:n])
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	if header.ID != 42 || !header.Response {
		t.Fatalf("unexpected reply header: %+v", header)
	}
}
