package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/outbox"
)

// Repository defines persistence operations for orders and their items.
// Lookups taking a userID scope the query to that owner unless it is empty.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error)
	FindByNumber(ctx context.Context, number, userID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, params ListParams) ([]models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, cancelledAt *time.Time) (int64, error)
	CancelIfStatus(ctx context.Context, id uuid.UUID, allowed []enums.OrderStatus, at time.Time) (int64, error)
	FindAwaitingContactBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindContactOverdueBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Metrics receives order lifecycle counters.
type Metrics interface {
	IncCreated(kind string)
	IncStatusUpdate(status string)
	IncCancelled(reason string)
}
