package cart

import (
	cartdto "github.com/angelmondragon/greenline-backend/api/controllers/cart/dto"
	cartsvc "github.com/angelmondragon/greenline-backend/internal/cart"
)

func toItemInput(payload cartdto.AddItemRequest) cartsvc.ItemInput {
	return cartsvc.ItemInput{
		ProductID:    payload.ProductID,
		ProductName:  payload.ProductName,
		ProductPrice: payload.ProductPrice,
		Quantity:     payload.Quantity,
	}
}

func toItemInputs(items []cartdto.AddItemRequest) []cartsvc.ItemInput {
	inputs := make([]cartsvc.ItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, toItemInput(item))
	}
	return inputs
}
