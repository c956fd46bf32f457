// Package natssink publishes goGuard audit events to NATS as JSON.
package natssink

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubject is used when New is given an empty subject.
const DefaultSubject = "goguard.audit"

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Sink is a goGuard.AuditSink. Emit runs on the audit dispatcher's
// goroutine.
type Sink struct {
	pub     Publisher
	subject string
	logger  zerolog.Logger
	failed  atomic.Uint64
}

// New returns a Sink publishing on subject. Publish failures are logged
// and counted, never returned.
func New(pub Publisher, subject string, logger zerolog.Logger) (*Sink, error) {
	if pub == nil {
		return nil, errors.New("natssink: nil publisher")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &Sink{pub: pub, subject: subject, logger: logger}, nil
}

// Connect dials url and returns a Sink over the new connection together
// with the connection, which the caller drains on shutdown.
func Connect(url, subject string, logger zerolog.Logger, opts ...nats.Option) (*Sink, *nats.Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(nc, subject, logger)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return s, nc, nil
}

// Subject returns the per-event subject: the base subject followed by the
// event type, so consumers can subscribe to "<subject>.>" or one type.
func (s *Sink) Subject(eventType string) string {
	if eventType == "" {
		return s.subject
	}
	return s.subject + "." + eventType
}

func (s *Sink) Emit(ctx context.Context, event goGuard.AuditEvent) {
	if ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		s.logger.Warn().Err(err).Str("event", event.EventType).Msg("audit encode failed")
		return
	}
	if err := s.pub.Publish(s.Subject(event.EventType), data); err != nil {
		s.failed.Add(1)
		s.logger.Warn().Err(err).Str("event", event.EventType).Msg("audit publish failed")
	}
}

// Failed reports how many events could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}
