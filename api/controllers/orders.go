package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/becoinapp/becoin-backend/api/responses"
	"github.com/becoinapp/becoin-backend/api/validators"
	ordersvc "github.com/becoinapp/becoin-backend/internal/orders"
	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/logger"
	"github.com/becoinapp/becoin-backend/pkg/pagination"
)

// ListOrders returns the caller's orders, newest first.
func ListOrders(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		orders, next, err := svc.List(r.Context(), userID, params, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := orderListResponse{Orders: make([]orderResponse, 0, len(orders))}
		for i := range orders {
			resp.Orders = append(resp.Orders, newOrderResponse(&orders[i]))
		}
		if next != nil {
			cursor := next.Encode()
			resp.NextCursor = &cursor
		}
		responses.WriteSuccess(w, resp)
	}
}

// GetOrder returns one of the caller's orders with its items and payments.
func GetOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseURLParamUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// MarkPreparing advances a pending order into preparation.
func MarkPreparing(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID) (*models.Order, error) {
		return svc.MarkPreparing(r.Context(), orderID)
	})
}

// MarkOnRoute advances a preparing order onto the delivery route.
func MarkOnRoute(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return transition(svc, logg, func(r *http.Request, orderID uuid.UUID) (*models.Order, error) {
		return svc.MarkOnRoute(r.Context(), orderID)
	})
}

// DeliverOrder settles an on-route order against the buyer-presented code.
func DeliverOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseURLParamUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload deliverOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Deliver(r.Context(), orderID, payload.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CancelOrder voids an open order and refunds the buyer.
func CancelOrder(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseURLParamUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orderID, payload.Observation)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func transition(svc ordersvc.Service, logg *logger.Logger, apply func(r *http.Request, orderID uuid.UUID) (*models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseURLParamUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := apply(r, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type deliverOrderRequest struct {
	Code int `json:"code" validate:"required,min=1000,max=9999"`
}

type cancelOrderRequest struct {
	Observation string `json:"observation" validate:"required"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}

type orderResponse struct {
	ID                uuid.UUID           `json:"id"`
	Code              int                 `json:"code"`
	Status            string              `json:"status"`
	PaymentType       string              `json:"payment_type"`
	GroupID           *uuid.UUID          `json:"group_id,omitempty"`
	DeliveryAddressID *uuid.UUID          `json:"delivery_address_id,omitempty"`
	SubtotalAmount    string              `json:"subtotal_amount"`
	DeliverySurcharge string              `json:"delivery_surcharge"`
	TotalAmount       string              `json:"total_amount"`
	SubtotalBecoin    string              `json:"subtotal_becoin"`
	DeliveryBecoin    string              `json:"delivery_becoin"`
	TotalBecoin       string              `json:"total_becoin"`
	Observation       *string             `json:"observation,omitempty"`
	DeliveredAt       *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	Items             []orderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	UnitPrice  string    `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	TotalPrice string    `json:"total_price"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:                order.ID,
		Code:              order.Code,
		Status:            order.Status.String(),
		PaymentType:       order.PaymentType.String(),
		GroupID:           order.GroupID,
		DeliveryAddressID: order.DeliveryAddressID,
		SubtotalAmount:    order.SubtotalAmount.StringFixed(2),
		DeliverySurcharge: order.DeliverySurcharge.StringFixed(2),
		TotalAmount:       order.TotalAmount.StringFixed(2),
		SubtotalBecoin:    order.SubtotalBecoin.StringFixed(2),
		DeliveryBecoin:    order.DeliveryBecoin.StringFixed(2),
		TotalBecoin:       order.TotalBecoin.StringFixed(2),
		Observation:       order.Observation,
		DeliveredAt:       order.DeliveredAt,
		CancelledAt:       order.CancelledAt,
		Items:             make([]orderItemResponse, 0, len(order.Items)),
		CreatedAt:         order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:  item.ProductID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			Quantity:   item.Quantity,
			TotalPrice: item.TotalPrice.StringFixed(2),
		})
	}
	return resp
}
