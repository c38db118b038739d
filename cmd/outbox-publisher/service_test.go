package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/outbox"
	"github.com/angelmondragon/greenline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/greenline-backend/pkg/outbox/registry"
)

func orderEvent(t *testing.T, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func ordersResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     enums.EventOrderCreated,
			Topic:         "orders-topic",
			AggregateType: enums.AggregateOrder,
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, 0), orderEvent(t, 0)}}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	collector := &fakeMetrics{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, collector, nil)

	batch, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchResult{fetched: 2, published: 1, retried: 1}, batch)
	assert.False(t, batch.stalled())
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	assert.Empty(t, repo.terminal)
	assert.Equal(t, 1, collector.failed)
	assert.Equal(t, 1, collector.published)
}

func TestServiceProcessBatchSetsMessageAttributes(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, nil, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.JSONEq(t, string(event.Payload), string(msg.Data))
	assert.Equal(t, "order_created", msg.Attributes["event_type"])
	assert.Equal(t, "order", msg.Attributes["aggregate_type"])
	assert.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
}

func TestServiceProcessBatchParksUnresolvableEvents(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	collector := &fakeMetrics{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakePublisher{}, reg, collector, nil)

	batch, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchResult{fetched: 1, parked: 1}, batch)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	require.Len(t, repo.terminalErrs, 1)
	assert.Contains(t, repo.terminalErrs[0].Error(), "non_retryable")
	assert.Equal(t, 1, collector.terminal)
}

func TestServiceProcessBatchParksAfterMaxAttempts(t *testing.T) {
	event := orderEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	assert.Contains(t, repo.terminalErrs[0].Error(), "max_attempts")
	assert.Empty(t, repo.failed)
}

func TestServiceProcessBatchParksPermanentPubSubErrors(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: status.Error(codes.NotFound, "topic not found")},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: ordersResolved()}, nil, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
	assert.Empty(t, repo.failed)
}

func TestServiceProcessBatchParksWhenPublisherMissing(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: ordersResolved()}, nil, nil)
	service.publisherFactory = func(string) publisher { return nil }

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{resolved: ordersResolved()}, nil, nil)
	batch, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, batch.fetched)
	assert.False(t, batch.stalled())
}

func TestClassifyPublishError(t *testing.T) {
	var nonRetry registry.NonRetryableError
	assert.ErrorAs(t, classifyPublishError(status.Error(codes.PermissionDenied, "denied")), &nonRetry)
	assert.ErrorAs(t, classifyPublishError(status.Error(codes.InvalidArgument, "bad")), &nonRetry)

	transient := status.Error(codes.Unavailable, "try again")
	assert.Equal(t, transient, classifyPublishError(transient))
	assert.NoError(t, classifyPublishError(nil))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(0, 500*time.Millisecond, 10*time.Second))
	assert.Equal(t, 4*time.Second, nextBackoff(2*time.Second, time.Second, 10*time.Second))
	assert.Equal(t, 10*time.Second, nextBackoff(8*time.Second, time.Second, 10*time.Second))
}

func TestServiceRunBacksOffWhilePubSubIsDown(t *testing.T) {
	repo := &queueRepo{pending: []models.OutboxEvent{orderEvent(t, 0)}}
	pub := &unavailablePublisher{}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: ordersResolved()}, nil, nil)
	service.publisherFactory = func(string) publisher { return pub }

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, service.Run(ctx), context.DeadlineExceeded)

	// Poll interval is 100ms, so the first retry waits at least 200ms.
	assert.LessOrEqual(t, pub.calls, 2)
	assert.Empty(t, repo.terminal)
	require.Len(t, repo.pending, 1)
	assert.Equal(t, pub.calls, repo.pending[0].AttemptCount)
}

func TestBatchResultStalled(t *testing.T) {
	assert.True(t, batchResult{fetched: 2, retried: 2}.stalled())
	assert.False(t, batchResult{fetched: 2, retried: 1, published: 1}.stalled())
	assert.False(t, batchResult{fetched: 1, parked: 1}.stalled())
	assert.False(t, batchResult{}.stalled())
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	repo := &fakeRepo{}
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{resolved: ordersResolved()}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, service.Run(ctx), context.DeadlineExceeded)
}

func TestServiceRunFailsWhenDependencyDown(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{resolved: ordersResolved()}, nil, nil)
	service.db = &fakeDB{pingErr: errors.New("connection refused")}

	err := service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event registry is required")
	assert.Contains(t, err.Error(), "config is required")
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, collector publishMetrics, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(_ string) publisher { return pub },
		Metrics:          collector,
	})
	require.NoError(t, err)
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.CurrentVersion,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(tb, err)
	return payload
}

type fakeRepo struct {
	events       []models.OutboxEvent
	published    []uuid.UUID
	failed       []uuid.UUID
	terminal     []uuid.UUID
	terminalErrs []error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, err error, _ int) error {
	f.terminal = append(f.terminal, id)
	f.terminalErrs = append(f.terminalErrs, err)
	return nil
}

// queueRepo keeps failed rows pending and bumps their attempt count the way
// the SQL repository does.
type queueRepo struct {
	pending  []models.OutboxEvent
	terminal []uuid.UUID
}

func (q *queueRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(q.pending) < limit {
		limit = len(q.pending)
	}
	return append([]models.OutboxEvent(nil), q.pending[:limit]...), nil
}

func (q *queueRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	q.remove(id)
	return nil
}

func (q *queueRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	for i := range q.pending {
		if q.pending[i].ID == id {
			q.pending[i].AttemptCount++
		}
	}
	return nil
}

func (q *queueRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	q.terminal = append(q.terminal, id)
	q.remove(id)
	return nil
}

func (q *queueRepo) remove(id uuid.UUID) {
	kept := q.pending[:0]
	for _, event := range q.pending {
		if event.ID != id {
			kept = append(kept, event)
		}
	}
	q.pending = kept
}

type unavailablePublisher struct {
	calls int
}

func (u *unavailablePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	u.calls++
	return fakePublishResult{err: status.Error(codes.Unavailable, "pubsub unavailable")}
}

type fakeDB struct {
	pingErr error
}

func (f *fakeDB) Ping(context.Context) error { return f.pingErr }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope = outbox.PayloadEnvelope{
		Version:    outbox.CurrentVersion,
		EventID:    event.ID.String(),
		OccurredAt: time.Now(),
	}
	return &resolved, f.err
}

type fakeMetrics struct {
	published int
	failed    int
	terminal  int
}

func (f *fakeMetrics) IncPublished(string) { f.published++ }
func (f *fakeMetrics) IncFailed(string)    { f.failed++ }
func (f *fakeMetrics) IncTerminal(string)  { f.terminal++ }
