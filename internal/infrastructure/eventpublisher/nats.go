package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/iho/balanceledger/internal/domain"
)

// Stream and subject layout for balance events.
const (
	StreamName    = "BALANCE_LEDGER_EVENTS"
	SubjectPrefix = "balance.ledger.events"
)

// jetStreamPublisher is the part of jetstream.JetStream the publisher uses.
type jetStreamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher publishes events to JetStream on
// balance.ledger.events.<event_type>. The event ID is the message ID, so
// JetStream drops redeliveries of an event that was published but not yet
// marked in the outbox.
type NATSPublisher struct {
	js jetStreamPublisher
}

// NewNATSPublisher creates a new NATSPublisher.
func NewNATSPublisher(js jetstream.JetStream) *NATSPublisher {
	return &NATSPublisher{js: js}
}

type natsMessage struct {
	ID            string         `json:"id"`
	AggregateID   string         `json:"aggregate_id"`
	AggregateType string         `json:"aggregate_type"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Subject returns the subject an event is published on.
func Subject(event *domain.OutboxEvent) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, event.EventType)
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	data, err := json.Marshal(natsMessage{
		ID:            event.ID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Payload:       event.Payload,
		CreatedAt:     event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := p.js.Publish(ctx, Subject(event), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publish %s: %w", event.ID, err)
	}

	return nil
}

// ConnectJetStream connects to NATS and ensures the events stream exists.
func ConnectJetStream(ctx context.Context, url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name("balanceledger"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if err := EnsureStream(ctx, js); err != nil {
		nc.Close()
		return nil, nil, err
	}

	return nc, js, nil
}

// EnsureStream creates or updates the balance events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
