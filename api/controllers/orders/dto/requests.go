package ordersdto

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/greenline-backend/pkg/types"
)

type CheckoutRequest struct {
	Address       types.DeliveryAddress `json:"delivery_address"`
	PaymentMethod string                `json:"payment_method" validate:"required,oneof=card apple_pay google_pay cash"`
	Tip           decimal.Decimal       `json:"tip"`
}

type TextOrderRequest struct {
	Address      types.DeliveryAddress `json:"delivery_address"`
	ContactPhone string                `json:"contact_phone" validate:"required,min=7,max=32"`
}

type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}
