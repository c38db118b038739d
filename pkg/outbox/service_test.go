package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
)

func TestServiceEmitWritesEnvelope(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, logger.Nop())
	orderID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: "user_a"},
			Data:          map[string]string{"order_number": "ORD-1"},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row).Error)
	assert.Equal(t, enums.EventOrderCreated, row.EventType)
	assert.Equal(t, orderID, row.AggregateID)
	assert.Nil(t, row.PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, CurrentVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "user_a", envelope.Actor.UserID)
	assert.JSONEq(t, `{"order_number":"ORD-1"}`, string(envelope.Data))
}

func TestServiceEmitRollsBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.EqualValues(t, 0, dbtest.Count(t, client.DB(), "outbox_events", ""))
}

func TestServiceEmitRejectsBadInput(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)

	assert.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated}))
	assert.Error(t, svc.Emit(context.Background(), client.DB(), DomainEvent{EventType: "bogus"}))
}

func TestServiceEmitIfNotExists(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderContactOverdue,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          map[string]string{"order_number": "TXT-1"},
	}

	for i, want := range []bool{true, false} {
		var emitted bool
		err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
			var err error
			emitted, err = svc.EmitIfNotExists(context.Background(), tx, event)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, want, emitted, "attempt %d", i)
	}
	assert.EqualValues(t, 1, dbtest.Count(t, client.DB(), "outbox_events", "aggregate_id = ?", orderID))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	conn := client.DB()

	first := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: time.Now().Add(-time.Minute)}
	second := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.AggregateID, rows[0].AggregateID)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("unavailable")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "unavailable", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, rows[0].ID, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	conn := client.DB()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &old}))
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}))

	older := time.Now().Add(-72 * time.Hour)
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{EventType: enums.EventOrderCancelled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &older}))

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().Add(-24*time.Hour), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.EqualValues(t, 0, dbtest.Count(t, conn, "outbox_events", "event_type = ?", enums.EventOrderCancelled), "oldest row goes first")

	deleted, err = repo.DeletePublishedBefore(context.Background(), time.Now().Add(-24*time.Hour), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.EqualValues(t, 1, dbtest.Count(t, conn, "outbox_events", ""), "unpublished rows are kept")
}

func TestTruncateError(t *testing.T) {
	long := make([]byte, maxErrorLen+10)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateError(errors.New(string(long))), maxErrorLen)
	assert.Equal(t, "", truncateError(nil))
}
