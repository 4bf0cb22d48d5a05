package carts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the working cart a checkout is materialized from.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Update(ctx context.Context, input UpdateCartInput) (*models.Cart, error)
}

// UpdateCartInput replaces the cart's items and settings wholesale.
type UpdateCartInput struct {
	UserID            uuid.UUID
	GroupID           *uuid.UUID
	DeliveryAddressID *uuid.UUID
	PaymentType       *enums.PaymentType
	Items             []CartItemInput
}

// CartItemInput is one product line in a cart update.
type CartItemInput struct {
	ProductID uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// Get returns the user's cart, creating an empty one on first use.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	created, err := s.repo.Create(ctx, &models.Cart{
		UserID:         userID,
		SubtotalAmount: decimal.Zero,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return created, nil
}

func (s *service) Update(ctx context.Context, input UpdateCartInput) (*models.Cart, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.PaymentType != nil && !input.PaymentType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment type %q", *input.PaymentType))
	}

	items := make([]models.CartItem, 0, len(input.Items))
	subtotal := decimal.Zero
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item unit price must not be negative")
		}
		total := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(total)
		items = append(items, models.CartItem{
			ProductID:  item.ProductID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			TotalPrice: total,
		})
	}

	cart, err := s.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ReplaceItems(ctx, cart.ID, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace cart items")
		}
		return repo.UpdateSettings(ctx, cart.ID, map[string]any{
			"group_id":            input.GroupID,
			"delivery_address_id": input.DeliveryAddressID,
			"payment_type":        input.PaymentType,
			"subtotal_amount":     subtotal,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, input.UserID)
}
