package controllers

import (
	"net/http"

	"github.com/becoinapp/becoin-backend/api/responses"
	checkoutsvc "github.com/becoinapp/becoin-backend/internal/checkout"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/logger"
)

// Checkout materializes the caller's cart into a paid, pending order.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrderFromCart(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}
