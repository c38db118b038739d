package orders

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/greenline-backend/api/responses"
	"github.com/angelmondragon/greenline-backend/api/validators"
	internalorders "github.com/angelmondragon/greenline-backend/internal/orders"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
	"github.com/angelmondragon/greenline-backend/pkg/pagination"
)

// List returns the caller's order history, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.GetUserOrders(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderList(result))
	}
}

func parseListParams(r *http.Request) (internalorders.ListParams, error) {
	var params internalorders.ListParams
	var err error

	if params.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
		return params, err
	}
	if params.Offset, err = validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000); err != nil {
		return params, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, parseErr := enums.ParseOrderStatus(raw)
		if parseErr != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status filter")
		}
		params.Status = status
	}
	if params.StartDate, err = validators.ParseQueryTime(r, "start_date", false); err != nil {
		return params, err
	}
	if params.EndDate, err = validators.ParseQueryTime(r, "end_date", true); err != nil {
		return params, err
	}
	return params, nil
}

// Detail looks an order up by its public number. Other customers' orders
// are reported as missing.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		number, err := validators.PathString(r, "orderNumber")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrderByNumber(r.Context(), number, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		responses.WriteSuccess(w, newOrder(order))
	}
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CancelOrder(r.Context(), orderID, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		responses.WriteSuccess(w, newOrder(order))
	}
}
