package cart

import (
	"github.com/shopspring/decimal"

	cartdto "github.com/angelmondragon/greenline-backend/api/controllers/cart/dto"
	cartsvc "github.com/angelmondragon/greenline-backend/internal/cart"
	"github.com/angelmondragon/greenline-backend/internal/totals"
)

func newCart(view *cartsvc.View) cartdto.Cart {
	items := make([]cartdto.CartItem, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, cartdto.CartItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductPrice: item.ProductPrice.StringFixed(2),
			Quantity:     item.Quantity,
			LineTotal:    item.ProductPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).StringFixed(2),
			CreatedAt:    item.CreatedAt,
			UpdatedAt:    item.UpdatedAt,
		})
	}
	return cartdto.Cart{
		ID:        view.ID,
		Items:     items,
		ItemCount: view.ItemCount,
		Totals:    newTotals(view.Totals),
		UpdatedAt: view.UpdatedAt,
	}
}

func newTotals(b totals.Breakdown) cartdto.Totals {
	return cartdto.Totals{
		Subtotal:    b.Subtotal.StringFixed(2),
		Tax:         b.Tax.StringFixed(2),
		DeliveryFee: b.DeliveryFee.StringFixed(2),
		Total:       b.Total.StringFixed(2),
	}
}

func newValidation(result *cartsvc.ValidationResult) cartdto.Validation {
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	return cartdto.Validation{Valid: result.Valid, Errors: errs}
}

func emptyCart() cartdto.Cart {
	return cartdto.Cart{Items: []cartdto.CartItem{}, Totals: newTotals(totals.Breakdown{})}
}
