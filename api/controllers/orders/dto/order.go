package ordersdto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/types"
)

type Order struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"order_number"`
	Kind            enums.OrderKind       `json:"kind"`
	Status          enums.OrderStatus     `json:"status"`
	Subtotal        string                `json:"subtotal"`
	Tax             string                `json:"tax"`
	DeliveryFee     string                `json:"delivery_fee"`
	Tip             string                `json:"tip"`
	Total           string                `json:"total"`
	DeliveryAddress types.DeliveryAddress `json:"delivery_address"`
	PaymentMethod   enums.PaymentMethod   `json:"payment_method"`
	ContactPhone    *string               `json:"contact_phone,omitempty"`
	Items           []OrderItem           `json:"items"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type OrderItem struct {
	ID           uuid.UUID `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	ProductPrice string    `json:"product_price"`
	Quantity     int       `json:"quantity"`
	LineTotal    string    `json:"line_total"`
}

// Placed is the checkout response: the new order plus where the storefront
// should send the customer next.
type Placed struct {
	Order       Order  `json:"order"`
	RedirectURL string `json:"redirect_url"`
}

type OrderList struct {
	Orders  []Order `json:"orders"`
	Total   int64   `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
	HasMore bool    `json:"has_more"`
}
