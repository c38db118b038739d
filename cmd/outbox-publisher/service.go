package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/pkg/config"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/metrics"
	"github.com/angelmondragon/greenline-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 30 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type publishMetrics interface {
	IncPublished(eventType string)
	IncFailed(eventType string)
	IncTerminal(eventType string)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          publishMetrics
}

func (p ServiceParams) validate() error {
	var err error
	for name, missing := range map[string]bool{
		"config":            p.Config == nil,
		"logger":            p.Logger == nil,
		"database client":   p.DB == nil,
		"pubsub client":     p.PubSub == nil,
		"outbox repository": p.Repository == nil,
		"event registry":    p.Registry == nil,
	} {
		if missing {
			err = multierr.Append(err, fmt.Errorf("%s is required", name))
		}
	}
	return err
}

// Service drains outbox_events into Pub/Sub. Each batch runs in one
// transaction so the row locks taken by the fetch are held until every row
// in the batch has been marked.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	metrics          publishMetrics
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		metrics:          params.Metrics,
		publisherFactory: params.PublisherFactory,
		batchSize:        orDefault(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:      orDefault(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.metrics == nil {
		s.metrics = (*metrics.OutboxMetrics)(nil)
	}
	if s.publisherFactory == nil {
		s.publisherFactory = gcpPublisherFactory(params.PubSub)
	}
	return s, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Run polls until ctx ends. Empty polls sleep one interval. Batch errors and
// batches where every row only retried back off exponentially up to
// maxBackoff, so a Pub/Sub outage does not spend publish attempts at poll
// speed.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	backoff := s.pollInterval
	for ctx.Err() == nil {
		batch, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch.failed", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
		case batch.stalled():
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"retried":    batch.retried,
				"backoff_ms": wait.Milliseconds(),
			}), "outbox.batch.stalled")
		case batch.fetched > 0:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
			wait = s.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// batchResult counts what one batch did with the rows it fetched.
type batchResult struct {
	fetched   int
	published int
	retried   int
	parked    int
}

// stalled is true when nothing left the queue: every fetched row was marked
// for retry.
func (b batchResult) stalled() bool {
	return b.retried > 0 && b.published == 0 && b.parked == 0
}

// processBatch publishes one batch. A publish failure on one row never aborts
// the rest of the batch; only repository errors do.
func (s *Service) processBatch(ctx context.Context) (batchResult, error) {
	var result batchResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch unpublished: %w", err)
		}
		result.fetched = len(events)
		for _, event := range events {
			o := s.deliver(ctx, event)
			if err := s.record(ctx, tx, event, o); err != nil {
				return err
			}
			switch o.kind {
			case outcomePublished:
				result.published++
			case outcomeRetry:
				result.retried++
			case outcomeTerminal:
				result.parked++
			}
		}
		return nil
	})
	return result, err
}

type outcomeKind int

const (
	outcomePublished outcomeKind = iota
	outcomeRetry
	outcomeTerminal
)

type terminalReason string

const (
	terminalNonRetryable terminalReason = "non_retryable"
	terminalMaxAttempts  terminalReason = "max_attempts"
)

type outcome struct {
	kind   outcomeKind
	reason terminalReason
	err    error
	fields map[string]any
}

// deliver publishes one row and classifies the result. It never touches the
// database.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) outcome {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcome{kind: outcomeTerminal, reason: terminalNonRetryable, err: err, fields: s.eventFields(event, resolved)}
	}
	fields := s.eventFields(event, resolved)

	err = classifyPublishError(s.publish(ctx, event, resolved))
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		return outcome{kind: outcomePublished, fields: fields}
	case errors.As(err, &nonRetry):
		return outcome{kind: outcomeTerminal, reason: terminalNonRetryable, err: err, fields: fields}
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return outcome{kind: outcomeTerminal, reason: terminalMaxAttempts, err: fmt.Errorf("max publish attempts reached: %w", err), fields: fields}
	}
	return outcome{kind: outcomeRetry, err: err, fields: fields}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, o outcome) error {
	logCtx := s.logg.WithFields(ctx, o.fields)
	eventType := event.EventType.String()

	switch o.kind {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(eventType)
		s.logg.Info(logCtx, "outbox.event.published")
	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, o.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.metrics.IncFailed(eventType)
		s.logg.Warn(s.logg.WithField(logCtx, "error", o.err.Error()), "outbox.event.retry")
	case outcomeTerminal:
		if err := s.repo.MarkTerminalTx(tx, event.ID, fmt.Errorf("%s: %w", o.reason, o.err), s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.IncTerminal(eventType)
		logCtx = s.logg.WithFields(logCtx, map[string]any{"terminal_reason": string(o.reason), "error": o.err.Error()})
		s.logg.Warn(logCtx, "outbox.event.parked")
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: event.Attributes(resolved.Envelope.EventID),
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// eventFields accepts a nil resolved for rows the registry rejected.
func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := event.LogFields()
	fields["batch_size"] = s.batchSize
	if resolved == nil {
		return fields
	}
	if id := resolved.Envelope.EventID; id != "" {
		fields["event_id"] = id
		fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if resolved.Descriptor.Topic != "" {
		fields["topic"] = resolved.Descriptor.Topic
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
