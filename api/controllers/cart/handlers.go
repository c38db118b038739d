package cart

import (
	"net/http"

	cartdto "github.com/angelmondragon/greenline-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/greenline-backend/api/middleware"
	"github.com/angelmondragon/greenline-backend/api/responses"
	"github.com/angelmondragon/greenline-backend/api/validators"
	cartsvc "github.com/angelmondragon/greenline-backend/internal/cart"
	"github.com/angelmondragon/greenline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/greenline-backend/pkg/errors"
	"github.com/angelmondragon/greenline-backend/pkg/logger"
)

// CartFetch returns the caller's cart with totals. Callers that never added
// anything get a 404 rather than an empty cart.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		view, err := svc.GetCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if view == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found"))
			return
		}

		responses.WriteSuccess(w, newCart(view))
	}
}

func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		count, err := svc.GetItemCount(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartdto.ItemCount{ItemCount: count})
	}
}

func CartValidate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		result, err := svc.ValidateCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newValidation(result))
	}
}

// CartAddItem adds quantity to a product line, creating the cart on first use.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		var payload cartdto.AddItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AddItem(r.Context(), userID, toItemInput(payload))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeView(w, view)
	}
}

func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		productID, err := validators.PathString(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartdto.UpdateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.UpdateItemQuantity(r.Context(), userID, productID, *payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeView(w, view)
	}
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		productID, err := validators.PathString(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveItem(r.Context(), userID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		if err := svc.ClearCart(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// CartMerge folds the storefront's guest cart into the signed-in cart.
func CartMerge(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireCaller(w, r, svc, logg)
		if !ok {
			return
		}

		var payload cartdto.MergeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		strategy, err := enums.ParseCartMergeStrategy(payload.Strategy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid merge strategy"))
			return
		}

		view, err := svc.MergeGuestCart(r.Context(), userID, toItemInputs(payload.Items), strategy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeView(w, view)
	}
}

func requireCaller(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return "", false
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return userID, true
}

// writeView renders a mutated cart. A mutation that left no cart row behind
// (removing from a cart that never existed) renders as empty.
func writeView(w http.ResponseWriter, view *cartsvc.View) {
	if view == nil {
		responses.WriteSuccess(w, emptyCart())
		return
	}
	responses.WriteSuccess(w, newCart(view))
}
