package cartdto

import "github.com/shopspring/decimal"

// AddItemRequest is one product line posted by the storefront.
type AddItemRequest struct {
	ProductID    string          `json:"product_id" validate:"required,max=128"`
	ProductName  string          `json:"product_name" validate:"required,max=255"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity" validate:"gt=0,max=999"`
}

// UpdateItemRequest sets a line's quantity. Zero or less removes the line.
type UpdateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// MergeRequest moves a guest cart into the signed-in cart.
type MergeRequest struct {
	Items    []AddItemRequest `json:"items" validate:"dive"`
	Strategy string           `json:"strategy,omitempty" validate:"omitempty,oneof=merge replace"`
}
