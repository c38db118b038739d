package orders

import (
	"net/http"

	ordersdto "github.com/angelmondragon/greenline-backend/api/controllers/orders/dto"
	"github.com/angelmondragon/greenline-backend/api/middleware"
	"github.com/angelmondragon/greenline-backend/api/responses"
	"github.com/angelmondragon/greenline-backend/api/validators"
	internalorders "github.com/angelmondragon/greenline-backend/internal/orders"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
)

// CheckoutMetrics counts checkouts that did not produce an order.
type CheckoutMetrics interface {
	IncCheckoutFailure(kind, code string)
}

// Checkout turns the caller's cart into a pending order and clears the cart.
func Checkout(svc internalorders.Service, metrics CheckoutMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		var payload ordersdto.CheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			checkoutFailed(r, w, metrics, logg, enums.OrderKindStandard, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), internalorders.CreateOrderInput{
			UserID:        userID,
			Address:       payload.Address,
			PaymentMethod: enums.PaymentMethod(payload.PaymentMethod),
			Tip:           payload.Tip,
		})
		if err != nil {
			checkoutFailed(r, w, metrics, logg, enums.OrderKindStandard, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPlaced(order))
	}
}

// TextOrder records a concierge order; staff call the customer to arrange
// payment, so the cart is left in place.
func TextOrder(svc internalorders.Service, metrics CheckoutMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		var payload ordersdto.TextOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			checkoutFailed(r, w, metrics, logg, enums.OrderKindText, err)
			return
		}

		order, err := svc.CreateTextOrder(r.Context(), internalorders.CreateTextOrderInput{
			UserID:       userID,
			Address:      payload.Address,
			ContactPhone: payload.ContactPhone,
		})
		if err != nil {
			checkoutFailed(r, w, metrics, logg, enums.OrderKindText, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPlaced(order))
	}
}

func checkoutFailed(r *http.Request, w http.ResponseWriter, metrics CheckoutMetrics, logg *logger.Logger, kind enums.OrderKind, err error) {
	if metrics != nil {
		code := pkgerrors.CodeInternal
		if typed := pkgerrors.As(err); typed != nil {
			code = typed.Code()
		}
		metrics.IncCheckoutFailure(kind.String(), string(code))
	}
	responses.WriteError(r.Context(), logg, w, err)
}

func requireCaller(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return "", false
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return userID, true
}
