package cart

import (
	"context"

	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CartRepository defines the persistence surface required by the cart service
// and by checkout, which reads and clears carts inside its own transaction.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	EnsureCart(ctx context.Context, userID string) (*models.Cart, error)
	FindByUserID(ctx context.Context, userID string) (*models.Cart, error)
	FindByUserIDForUpdate(ctx context.Context, userID string) (*models.Cart, error)
	UpsertItem(ctx context.Context, item *models.CartItem) error
	SetItemQuantity(ctx context.Context, cartID uuid.UUID, productID string, quantity int) (bool, error)
	DeleteItem(ctx context.Context, cartID uuid.UUID, productID string) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	Touch(ctx context.Context, cartID uuid.UUID) error
	SumQuantities(ctx context.Context, userID string) (int, error)
}
