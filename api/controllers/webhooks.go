package controllers

import (
	"net/http"

	"github.com/becoinapp/becoin-backend/api/responses"
	"github.com/becoinapp/becoin-backend/api/validators"
	gatewaysvc "github.com/becoinapp/becoin-backend/internal/gateway"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/logger"
)

// GatewayWebhook ingests payment gateway notifications and settles the
// pending wallet transactions they reference.
func GatewayWebhook(svc *gatewaysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway service unavailable"))
			return
		}

		var payload gatewayEventRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.HandleEvent(r.Context(), gatewaysvc.Event{
			ID:        payload.ID,
			Type:      gatewaysvc.EventType(payload.Type),
			Reference: payload.Reference,
			Reason:    payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}

type gatewayEventRequest struct {
	ID        string `json:"id" validate:"required"`
	Type      string `json:"type" validate:"required"`
	Reference string `json:"reference" validate:"required"`
	Reason    string `json:"reason,omitempty"`
}
