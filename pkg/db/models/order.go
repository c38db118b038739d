package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/greenline-backend/pkg/enums"
	"github.com/angelmondragon/greenline-backend/pkg/types"
)

// Order is the immutable snapshot of a checked-out cart. Only Status (and
// CancelledAt) change after creation.
type Order struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber   string                `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	UserID        string                `gorm:"column:user_id;not null;index:orders_user_created_idx,priority:1"`
	Kind          enums.OrderKind       `gorm:"column:kind;not null;default:'standard'"`
	Status        enums.OrderStatus     `gorm:"column:status;not null;default:'pending'"`
	Subtotal      decimal.Decimal       `gorm:"column:subtotal;type:numeric(10,2);not null"`
	Tax           decimal.Decimal       `gorm:"column:tax;type:numeric(10,2);not null"`
	DeliveryFee   decimal.Decimal       `gorm:"column:delivery_fee;type:numeric(10,2);not null"`
	Tip           decimal.Decimal       `gorm:"column:tip;type:numeric(10,2);not null"`
	Total         decimal.Decimal       `gorm:"column:total;type:numeric(10,2);not null"`
	Address       types.DeliveryAddress `gorm:"embedded"`
	PaymentMethod enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	ContactPhone  *string               `gorm:"column:contact_phone"`
	CancelledAt   *time.Time            `gorm:"column:cancelled_at"`
	Items         []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime;index:orders_user_created_idx,priority:2,sort:desc"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
