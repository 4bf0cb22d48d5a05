package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/becoinapp/becoin-backend/api/responses"
	"github.com/becoinapp/becoin-backend/api/validators"
	cartsvc "github.com/becoinapp/becoin-backend/internal/carts"
	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/logger"
)

// GetCart returns the caller's cart, creating an empty one on first use.
func GetCart(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cart, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

// UpdateCart replaces the cart's items and settings wholesale.
func UpdateCart(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := cartsvc.UpdateCartInput{
			UserID:            userID,
			GroupID:           payload.GroupID,
			DeliveryAddressID: payload.DeliveryAddressID,
			Items:             make([]cartsvc.CartItemInput, 0, len(payload.Items)),
		}
		if payload.PaymentType != nil {
			paymentType, err := enums.ParsePaymentType(*payload.PaymentType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment type"))
				return
			}
			input.PaymentType = &paymentType
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, cartsvc.CartItemInput{
				ProductID: item.ProductID,
				Name:      item.Name,
				UnitPrice: item.UnitPrice,
				Quantity:  item.Quantity,
			})
		}

		cart, err := svc.Update(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(cart))
	}
}

type updateCartRequest struct {
	GroupID           *uuid.UUID        `json:"group_id,omitempty" validate:"omitempty"`
	DeliveryAddressID *uuid.UUID        `json:"delivery_address_id,omitempty" validate:"omitempty"`
	PaymentType       *string           `json:"payment_type,omitempty" validate:"omitempty"`
	Items             []cartItemRequest `json:"items" validate:"dive"`
}

type cartItemRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
}

type cartResponse struct {
	ID                uuid.UUID          `json:"id"`
	GroupID           *uuid.UUID         `json:"group_id,omitempty"`
	DeliveryAddressID *uuid.UUID         `json:"delivery_address_id,omitempty"`
	PaymentType       *string            `json:"payment_type,omitempty"`
	SubtotalAmount    string             `json:"subtotal_amount"`
	Items             []cartItemResponse `json:"items"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

type cartItemResponse struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	UnitPrice  string    `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	TotalPrice string    `json:"total_price"`
}

func newCartResponse(cart *models.Cart) cartResponse {
	resp := cartResponse{
		ID:                cart.ID,
		GroupID:           cart.GroupID,
		DeliveryAddressID: cart.DeliveryAddressID,
		SubtotalAmount:    cart.SubtotalAmount.StringFixed(2),
		Items:             make([]cartItemResponse, 0, len(cart.Items)),
		UpdatedAt:         cart.UpdatedAt,
	}
	if cart.PaymentType != nil {
		value := cart.PaymentType.String()
		resp.PaymentType = &value
	}
	for _, item := range cart.Items {
		resp.Items = append(resp.Items, cartItemResponse{
			ProductID:  item.ProductID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			Quantity:   item.Quantity,
			TotalPrice: item.TotalPrice.StringFixed(2),
		})
	}
	return resp
}
