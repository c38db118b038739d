package orders

import (
	"fmt"
	"net/url"

	ordersdto "github.com/angelmondragon/greenline-backend/api/controllers/orders/dto"
	internalorders "github.com/angelmondragon/greenline-backend/internal/orders"
	"github.com/angelmondragon/greenline-backend/pkg/db/models"
	"github.com/angelmondragon/greenline-backend/pkg/pagination"
)

func newOrder(order *models.Order) ordersdto.Order {
	items := make([]ordersdto.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ordersdto.OrderItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductPrice: item.ProductPrice.StringFixed(2),
			Quantity:     item.Quantity,
			LineTotal:    item.LineTotal.StringFixed(2),
		})
	}
	return ordersdto.Order{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Kind:            order.Kind,
		Status:          order.Status,
		Subtotal:        order.Subtotal.StringFixed(2),
		Tax:             order.Tax.StringFixed(2),
		DeliveryFee:     order.DeliveryFee.StringFixed(2),
		Tip:             order.Tip.StringFixed(2),
		Total:           order.Total.StringFixed(2),
		DeliveryAddress: order.Address,
		PaymentMethod:   order.PaymentMethod,
		ContactPhone:    order.ContactPhone,
		Items:           items,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func newPlaced(order *models.Order) ordersdto.Placed {
	return ordersdto.Placed{
		Order:       newOrder(order),
		RedirectURL: confirmationURL(order.OrderNumber),
	}
}

func confirmationURL(orderNumber string) string {
	return fmt.Sprintf("/orders/%s/confirmation", url.PathEscape(orderNumber))
}

func newOrderList(result *internalorders.ListResult) ordersdto.OrderList {
	orders := make([]ordersdto.Order, 0, len(result.Orders))
	for i := range result.Orders {
		orders = append(orders, newOrder(&result.Orders[i]))
	}
	page := pagination.Params{Limit: result.Limit, Offset: result.Offset}
	return ordersdto.OrderList{
		Orders:  orders,
		Total:   result.Total,
		Limit:   result.Limit,
		Offset:  result.Offset,
		HasMore: page.HasMore(result.Total),
	}
}
