package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/greenline-backend/pkg/enums"
)

// OrderCreatedEvent announces a placed order, standard or concierge.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        string              `json:"user_id"`
	Kind          enums.OrderKind     `json:"kind"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	ItemCount     int                 `json:"item_count"`
	Total         string              `json:"total"`
	ContactPhone  *string             `json:"contact_phone,omitempty"`
}

// OrderStatusChangedEvent is emitted by staff status updates.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      string            `json:"user_id"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
}

// OrderCancelledEvent is emitted when a customer cancels or a concierge order expires.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	UserID      string            `json:"user_id"`
	From        enums.OrderStatus `json:"from"`
	CancelledAt time.Time         `json:"cancelled_at"`
	Reason      string            `json:"reason,omitempty"`
}

// OrderContactOverdueEvent asks support to follow up on a concierge order
// nobody has contacted yet.
type OrderContactOverdueEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	OrderNumber  string    `json:"order_number"`
	UserID       string    `json:"user_id"`
	ContactPhone *string   `json:"contact_phone,omitempty"`
	PlacedAt     time.Time `json:"placed_at"`
}
