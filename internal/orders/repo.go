package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/internal/repo"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/pagination"
)

type repository struct {
	repo.Base
	now func() time.Time
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db), now: time.Now}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx), now: r.now}
}

// CreateOrder inserts the order and its items in one statement batch.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error) {
	return r.first(withItems(r.DB(ctx)), scopeOwner(userID), "orders.id = ?", id)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID, userID string) (*models.Order, error) {
	return r.first(r.ForUpdate(ctx), scopeOwner(userID), "orders.id = ?", id)
}

func (r *repository) FindByNumber(ctx context.Context, number, userID string) (*models.Order, error) {
	return r.first(withItems(r.DB(ctx)), scopeOwner(userID), "orders.order_number = ?", number)
}

func (r *repository) first(conn *gorm.DB, scope func(*gorm.DB) *gorm.DB, query string, arg any) (*models.Order, error) {
	var order models.Order
	if err := conn.Scopes(scope).Where(query, arg).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByUser returns one page of the user's orders, newest first, and the
// number of orders matching the filters across all pages.
func (r *repository) ListByUser(ctx context.Context, userID string, params ListParams) ([]models.Order, int64, error) {
	page := pagination.Params{Limit: params.Limit, Offset: params.Offset}.Normalize()
	filtered := func(db *gorm.DB) *gorm.DB {
		db = db.Where("orders.user_id = ?", userID)
		if params.Status != "" {
			db = db.Where("orders.status = ?", params.Status)
		}
		if params.StartDate != nil {
			db = db.Where("orders.created_at >= ?", *params.StartDate)
		}
		if params.EndDate != nil {
			db = db.Where("orders.created_at <= ?", *params.EndDate)
		}
		return db
	}

	var total int64
	if err := r.DB(ctx).Model(&models.Order{}).Scopes(filtered).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Order
	err := withItems(r.DB(ctx)).
		Scopes(filtered).
		Order("orders.created_at DESC").
		Order("orders.id DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateStatus overwrites the status. cancelledAt is written only when set.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, cancelledAt *time.Time) (int64, error) {
	updates := map[string]any{
		"status":     status,
		"updated_at": r.now(),
	}
	if cancelledAt != nil {
		updates["cancelled_at"] = *cancelledAt
	}
	res := r.DB(ctx).Model(&models.Order{}).Where("id = ?", id).UpdateColumns(updates)
	return res.RowsAffected, res.Error
}

// CancelIfStatus cancels the order only while it is in one of the allowed
// states, so a concurrent transition is never overwritten.
func (r *repository) CancelIfStatus(ctx context.Context, id uuid.UUID, allowed []enums.OrderStatus, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, allowed).
		UpdateColumns(map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}

// FindAwaitingContactBefore lists concierge orders nobody has picked up yet,
// oldest first.
func (r *repository) FindAwaitingContactBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPendingContact, cutoff).
		Order("created_at ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// FindContactOverdueBefore is FindAwaitingContactBefore without the orders
// that already carry a contact-overdue event, so flagged orders never crowd
// newer ones out of the batch.
func (r *repository) FindContactOverdueBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	db := r.DB(ctx)
	flagged := db.Session(&gorm.Session{NewDB: true}).
		Table("outbox_events").
		Select("1").
		Where("outbox_events.aggregate_id = orders.id").
		Where("outbox_events.aggregate_type = ? AND outbox_events.event_type = ?", enums.AggregateOrder, enums.EventOrderContactOverdue)

	var rows []models.Order
	err := db.
		Where("status = ? AND created_at < ?", enums.OrderStatusPendingContact, cutoff).
		Where("NOT EXISTS (?)", flagged).
		Order("created_at ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

func withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC").Order("product_id ASC")
	})
}

func scopeOwner(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID == "" {
			return db
		}
		return db.Where("orders.user_id = ?", userID)
	}
}
