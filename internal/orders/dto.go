package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/types"
)

// CreateOrderInput carries a self-serve checkout.
type CreateOrderInput struct {
	UserID        string
	Address       types.DeliveryAddress
	PaymentMethod enums.PaymentMethod
	Tip           decimal.Decimal
}

// CreateTextOrderInput carries a concierge checkout. Payment and tip are
// settled later over the phone.
type CreateTextOrderInput struct {
	UserID       string
	Address      types.DeliveryAddress
	ContactPhone string
}

// ListParams filters a customer's order history. Zero values mean no filter.
type ListParams struct {
	Limit     int
	Offset    int
	Status    enums.OrderStatus
	StartDate *time.Time
	EndDate   *time.Time
}

// ListResult is one page of orders plus the count across all pages.
type ListResult struct {
	Orders []models.Order
	Total  int64
	Limit  int
	Offset int
}

// Actor identifies who triggered a change, for event attribution.
type Actor struct {
	UserID string
	Role   string
}

// Cancellation reasons recorded on order_cancelled events.
const (
	CancelReasonCustomer       = "customer_requested"
	CancelReasonContactExpired = "contact_expired"
	CancelReasonStaff          = "staff_updated"
)
