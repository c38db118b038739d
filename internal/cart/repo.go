package cart

import (
	"context"
	"time"

	"github.com/angelmondragon/greenline-backend/internal/repo"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes persistence operations for carts and their items.
type Repository struct {
	repo.Base
	now func() time.Time
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db), now: time.Now}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{Base: repo.NewBase(tx), now: r.now}
}

// EnsureCart inserts an empty cart for the user unless one exists, then loads it.
func (r *Repository) EnsureCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart := models.Cart{UserID: userID}
	if err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&cart).Error; err != nil {
		return nil, err
	}

	var existing models.Cart
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

// FindByUserID loads the user's cart with items, oldest line first.
func (r *Repository) FindByUserID(ctx context.Context, userID string) (*models.Cart, error) {
	return r.findByUserID(r.DB(ctx), userID)
}

// FindByUserIDForUpdate is FindByUserID holding a row lock on the cart until
// the surrounding transaction ends.
func (r *Repository) FindByUserIDForUpdate(ctx context.Context, userID string) (*models.Cart, error) {
	return r.findByUserID(r.ForUpdate(ctx), userID)
}

func (r *Repository) findByUserID(conn *gorm.DB, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := conn.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("product_id ASC")
		}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpsertItem inserts the item or, when the product is already in the cart,
// increments the stored quantity in a single statement.
func (r *Repository) UpsertItem(ctx context.Context, item *models.CartItem) error {
	now := r.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("cart_items.quantity + excluded.quantity"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(item).Error
}

// SetItemQuantity overwrites the quantity and reports whether the row existed.
func (r *Repository) SetItemQuantity(ctx context.Context, cartID uuid.UUID, productID string, quantity int) (bool, error) {
	res := r.DB(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		UpdateColumns(map[string]any{
			"quantity":   quantity,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteItem removes a single product line; absent rows are not an error.
func (r *Repository) DeleteItem(ctx context.Context, cartID uuid.UUID, productID string) error {
	return r.DB(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{}).Error
}

// DeleteItems empties the cart. The cart row itself is kept.
func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.DB(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// Touch bumps the cart's updated_at.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumn("updated_at", r.now()).Error
}

// SumQuantities totals item quantities for the user's cart; zero without a cart.
func (r *Repository) SumQuantities(ctx context.Context, userID string) (int, error) {
	var total int64
	err := r.DB(ctx).
		Table("cart_items").
		Select("COALESCE(SUM(cart_items.quantity), 0)").
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}
