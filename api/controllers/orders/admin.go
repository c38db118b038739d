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

// AdminUpdateStatus lets back-office staff move any order to a new status.
func AdminUpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload ordersdto.StatusUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		actor := internalorders.Actor{
			UserID: staffID,
			Role:   middleware.RoleFromContext(r.Context()).String(),
		}
		order, err := svc.UpdateOrderStatus(r.Context(), orderID, status, "", actor)
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
