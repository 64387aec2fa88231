package eventpublisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/balanceledger/internal/adapter/repository/memory"
	"github.com/iho/balanceledger/internal/domain"
	"github.com/iho/balanceledger/internal/infrastructure/metrics"
)

func seededOutbox(t *testing.T, ids ...string) *memory.Store {
	t.Helper()

	store := memory.NewStore(nil)
	for _, id := range ids {
		now := time.Now().UTC()
		_, err := store.Submit(context.Background(), domain.NewTransition(id, domain.CommandCreate, nil, domain.NewBalanceRecord("acc-"+id, "USD", "node-a", now), now))
		require.NoError(t, err)
	}
	return store
}

func newTestPublisher(repo *memory.Store, pub Publisher, m *metrics.Metrics) *EventPublisher {
	return NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  pub,
		Logger:     zerolog.Nop(),
		Metrics:    m,
		BatchSize:  10,
		Interval:   5 * time.Millisecond,
	})
}

func TestProcessEventsPublishesAndMarks(t *testing.T) {
	repo := seededOutbox(t, "evt-1")
	pub := &stubPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	ep := newTestPublisher(repo, pub, m)

	require.NoError(t, ep.processEvents(context.Background()))

	require.Len(t, pub.published, 1)
	assert.Equal(t, domain.EventTypeBalanceCreated, pub.published[0].EventType)

	remaining, err := repo.GetUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues(domain.EventTypeBalanceCreated, "published")))
}

func TestProcessEventsContinuesOnPublishError(t *testing.T) {
	repo := seededOutbox(t, "evt-1", "evt-2")
	pub := &stubPublisher{errorsByID: map[string]error{"evt-1": errors.New("fail")}}
	ep := newTestPublisher(repo, pub, nil)

	require.NoError(t, ep.processEvents(context.Background()))

	require.Len(t, pub.published, 1)
	assert.Equal(t, "evt-2", pub.published[0].ID)

	remaining, err := repo.GetUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "evt-1", remaining[0].ID)
}

func TestTickDeletesPublishedPastRetention(t *testing.T) {
	repo := &recordingOutbox{Store: seededOutbox(t, "evt-1")}
	ep := NewEventPublisher(Config{
		OutboxRepo: repo,
		Publisher:  &stubPublisher{},
		Logger:     zerolog.Nop(),
		Retention:  time.Hour,
	})

	before := time.Now()
	ep.tick(context.Background())

	require.Len(t, repo.deleteCutoffs, 1)
	assert.WithinDuration(t, before.Add(-time.Hour), repo.deleteCutoffs[0], time.Minute)

	remaining, err := repo.GetUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestTickKeepsPublishedWithoutRetention(t *testing.T) {
	repo := &recordingOutbox{Store: seededOutbox(t, "evt-1")}
	ep := newTestPublisher(repo.Store, &stubPublisher{}, nil)
	ep.outboxRepo = repo

	ep.tick(context.Background())

	assert.Empty(t, repo.deleteCutoffs)
}

func TestStartStopsOnContextCancellation(t *testing.T) {
	ep := newTestPublisher(memory.NewStore(nil), &stubPublisher{}, nil)
	ep.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ep.Start(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLogPublisher(zerolog.New(&buf))

	err := pub.Publish(context.Background(), &domain.OutboxEvent{
		ID:        "evt-1",
		EventType: domain.EventTypeBalanceDeposited,
		Payload:   map[string]any{"amount": "10"},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "evt-1", line["event_id"])
	assert.Equal(t, "10", line["payload"].(map[string]any)["amount"])
}

func TestNATSPublisher(t *testing.T) {
	js := &stubJetStream{}
	pub := &NATSPublisher{js: js}

	now := time.Now().UTC()
	v1 := domain.NewBalanceRecord("acc-1", "USD", "node-a", now)
	event := domain.NewTransitionEvent("evt-9", domain.NewTransition("tr-1", domain.CommandDeposit, v1, v1.Deposited(decimal.NewFromInt(3), now), now), now)

	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, js.subjects, 1)
	assert.Equal(t, "balance.ledger.events.balance.deposited", js.subjects[0])

	var msg natsMessage
	require.NoError(t, json.Unmarshal(js.data[0], &msg))
	assert.Equal(t, "evt-9", msg.ID)
	assert.Equal(t, "3", msg.Payload["amount"])
}

func TestNATSPublisherError(t *testing.T) {
	pub := &NATSPublisher{js: &stubJetStream{err: errors.New("no responders")}}

	err := pub.Publish(context.Background(), &domain.OutboxEvent{ID: "evt-1", EventType: domain.EventTypeBalanceCreated})
	assert.Error(t, err)
}

type recordingOutbox struct {
	*memory.Store
	deleteCutoffs []time.Time
}

func (r *recordingOutbox) DeletePublished(ctx context.Context, before time.Time) error {
	r.deleteCutoffs = append(r.deleteCutoffs, before)
	return r.Store.DeletePublished(ctx, before)
}

type stubPublisher struct {
	published  []*domain.OutboxEvent
	errorsByID map[string]error
}

func (s *stubPublisher) Publish(ctx context.Context, event *domain.OutboxEvent) error {
	if err := s.errorsByID[event.ID]; err != nil {
		return err
	}
	s.published = append(s.published, event)
	return nil
}

type stubJetStream struct {
	subjects []string
	data     [][]byte
	err      error
}

func (s *stubJetStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.subjects = append(s.subjects, subject)
	s.data = append(s.data, data)
	return &jetstream.PubAck{Stream: StreamName}, nil
}
