package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/siteintel/internal/core/domain"
)

// Subjects.
const (
	SubjectParcelLocked   = "siteintel.parcel.locked"
	SubjectSurveyUploaded = "siteintel.survey.uploaded"
)

// LockedSubject is the per-county subject a lock is published on.
func LockedSubject(county string) string {
	if county == "" {
		county = "unknown"
	}
	return SubjectParcelLocked + "." + county
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "PARCEL_LOCKS",
			Subjects:  []string{SubjectParcelLocked + ".>"},
			Retention: nats.InterestPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "SURVEYS",
			Subjects:  []string{SubjectSurveyUploaded},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishParcelLocked announces a locked parcel to report generation.
func (p *Publisher) PublishParcelLocked(ctx context.Context, lock *domain.LockedParcel) error {
	data, err := json.Marshal(lock)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(LockedSubject(lock.County), data, nats.Context(ctx), nats.MsgId("lock-"+lock.SessionID))
	return err
}

// PublishSurveyUploaded queues a stored survey for the matcher worker.
func (p *Publisher) PublishSurveyUploaded(ctx context.Context, event *domain.SurveyUploadedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSurveyUploaded, data, nats.Context(ctx), nats.MsgId("survey-"+event.SurveyID))
	return err
}

// Connected reports whether the connection is up, for readiness probes.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("siteintel"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
