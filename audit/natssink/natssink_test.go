package natssink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/rs/zerolog"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(subj string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{subject: subj, data: data})
	return nil
}

func TestSinkPublishesJSONPerEventSubject(t *testing.T) {
	pub := &fakePublisher{}
	sink, err := New(pub, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sink.Emit(context.Background(), goGuard.AuditEvent{
		Timestamp: at,
		EventType: "login_success",
		UserID:    "u1",
		Success:   true,
		Metadata:  map[string]string{"remember_me": "true"},
	})

	if len(pub.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.msgs))
	}
	if pub.msgs[0].subject != "goguard.audit.login_success" {
		t.Fatalf("unexpected subject %q", pub.msgs[0].subject)
	}

	var got goGuard.AuditEvent
	if err := json.Unmarshal(pub.msgs[0].data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != "u1" || !got.Success || !got.Timestamp.Equal(at) || got.Metadata["remember_me"] != "true" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestSinkCountsPublishFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	sink, err := New(pub, "audit", zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sink.Emit(context.Background(), goGuard.AuditEvent{EventType: "logout_all"})
	sink.Emit(context.Background(), goGuard.AuditEvent{EventType: "logout_all"})

	if sink.Failed() != 2 {
		t.Fatalf("expected 2 failures, got %d", sink.Failed())
	}
}

func TestSinkSkipsCanceledContext(t *testing.T) {
	pub := &fakePublisher{}
	sink, _ := New(pub, "audit", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Emit(ctx, goGuard.AuditEvent{EventType: "signup"})

	if len(pub.msgs) != 0 {
		t.Fatalf("expected no publish after cancel, got %d", len(pub.msgs))
	}
}

func TestNewRejectsNilPublisher(t *testing.T) {
	if _, err := New(nil, "audit", zerolog.Nop()); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}
