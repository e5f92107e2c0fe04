package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Mortvola/tracker/internal/core/domain"
)

const (
	// StreamName is the JetStream stream holding incident change events.
	StreamName = "TRACKER_INCIDENTS"
	// SubjectPrefix prefixes every change subject.
	SubjectPrefix = "tracker.incident"
	// SubjectAll matches every change subject.
	SubjectAll = SubjectPrefix + ".>"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the incident stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectAll},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    nats.FileStorage,
		Duplicates: 2 * time.Hour,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist; try update
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishChange publishes an ADDED or UPDATED event. The event id doubles as
// the JetStream message id, so a retried cycle inside the stream's duplicate
// window does not notify twice.
func (p *Publisher) PublishChange(ctx context.Context, e *domain.ChangeEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ChangeSubject(e.Kind, e.GlobalID), data, nats.MsgId(e.ID), nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// ChangeSubject builds "tracker.incident.<kind>.<globalId>". Characters that
// are not valid inside a subject token are replaced.
func ChangeSubject(kind domain.ChangeKind, globalID string) string {
	return SubjectPrefix + "." + strings.ToLower(string(kind)) + "." + subjectToken(globalID)
}

// WatchSubject builds a subscription subject for change events. An empty
// kind matches every kind and an empty globalID matches every incident.
func WatchSubject(kind domain.ChangeKind, globalID string) string {
	k, id := "*", "*"
	if kind != "" {
		k = strings.ToLower(string(kind))
	}
	if globalID != "" {
		id = subjectToken(globalID)
	}
	return SubjectPrefix + "." + k + "." + id
}

func subjectToken(s string) string {
	s = strings.Trim(s, "{}")
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("tracker"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
