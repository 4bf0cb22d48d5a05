package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/internal/ledger"
	"github.com/becoinapp/becoin-backend/internal/wallets"
	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/metrics"
	"github.com/becoinapp/becoin-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the order lifecycle. Forward transitions never skip a
// state; cancellation is allowed from any non-terminal state. Delivery and
// cancellation settle the escrowed payment against the ledger inside the
// same transaction as the status change.
type Service interface {
	Get(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, buyerID uuid.UUID, params pagination.Params, status *enums.OrderStatus) ([]models.Order, *pagination.Cursor, error)
	MarkPreparing(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkOnRoute(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Deliver(ctx context.Context, orderID uuid.UUID, code int) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, observation string) (*models.Order, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	manager wallets.Manager
	ledger  ledger.Service
	metrics *metrics.EngineMetrics
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, manager wallets.Manager, ledgerSvc ledger.Service, engineMetrics *metrics.EngineMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if manager == nil {
		return nil, fmt.Errorf("balance manager required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		manager: manager,
		ledger:  ledgerSvc,
		metrics: engineMetrics,
	}, nil
}

func (s *service) Get(ctx context.Context, buyerID, orderID uuid.UUID) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, buyerID uuid.UUID, params pagination.Params, status *enums.OrderStatus) ([]models.Order, *pagination.Cursor, error) {
	if buyerID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if status != nil && !status.IsValid() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", *status))
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	orders, next, err := s.repo.List(ctx, buyerID, ListParams{Limit: params.Limit, Cursor: cursor, Status: status})
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, next, nil
}

func (s *service) MarkPreparing(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.advance(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusPreparing)
}

func (s *service) MarkOnRoute(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.advance(ctx, orderID, enums.OrderStatusPreparing, enums.OrderStatusOnRoute)
}

// advance performs a pure status mutation with no ledger effect.
func (s *service) advance(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := requireStatus(order, from); err != nil {
			return err
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": to}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = to
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderTransition(updated.Status.String())
	return updated, nil
}

func (s *service) Deliver(ctx context.Context, orderID uuid.UUID, code int) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if err := requireStatus(order, enums.OrderStatusOnRoute); err != nil {
			return err
		}
		if order.Code != code {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery code mismatch")
		}

		payment, err := s.loadPayment(ctx, repo, order.ID)
		if err != nil {
			return err
		}

		if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
			"status": enums.PaymentStatusCompleted,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment")
		}

		// The locked amount leaves the buyer for good; the platform wallet
		// collects the sale.
		if _, err := s.manager.Unlock(ctx, tx, payment.WalletID, payment.AmountPaid, wallets.UnlockCapture); err != nil {
			return err
		}
		platform, err := s.manager.Platform(ctx, tx)
		if err != nil {
			return err
		}
		platform, err = s.manager.Credit(ctx, tx, platform.ID, order.TotalBecoin)
		if err != nil {
			return err
		}

		if payment.TransactionID != nil {
			if err := s.ledger.MarkStatus(ctx, tx, *payment.TransactionID, enums.TransactionStatusCompleted); err != nil {
				return err
			}
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			WalletID:        platform.ID,
			RelatedWalletID: &payment.WalletID,
			Type:            enums.TransactionTypeSale,
			Status:          enums.TransactionStatusCompleted,
			Amount:          order.TotalBecoin,
			PostBalance:     platform.AvailableBalance,
			Reference:       Reference(order.ID),
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = enums.OrderStatusDelivered
		order.DeliveredAt = &now
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderTransition(enums.OrderStatusDelivered.String())
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, observation string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if observation == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled").
				WithDetails(map[string]string{"status": order.Status.String()})
		}

		payment, err := s.loadPayment(ctx, repo, order.ID)
		if err != nil {
			return err
		}

		if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
			"status":         enums.PaymentStatusFailed,
			"failure_reason": observation,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail payment")
		}

		// Escrow flows back to the buyer's spendable balance.
		wallet, err := s.manager.Unlock(ctx, tx, payment.WalletID, payment.AmountPaid, wallets.UnlockRelease)
		if err != nil {
			return err
		}

		if payment.TransactionID != nil {
			if err := s.ledger.MarkStatus(ctx, tx, *payment.TransactionID, enums.TransactionStatusFailed); err != nil {
				return err
			}
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			WalletID:    wallet.ID,
			Type:        enums.TransactionTypeRefund,
			Status:      enums.TransactionStatusCompleted,
			Amount:      payment.AmountPaid,
			PostBalance: wallet.AvailableBalance,
			Reference:   Reference(order.ID),
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
			"observation":  observation,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.Observation = &observation
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOrderTransition(enums.OrderStatusCancelled.String())
	return updated, nil
}

func (s *service) lockOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadPayment(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Payment, error) {
	payment, err := repo.FindPaymentByOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order has no payment record")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func requireStatus(order *models.Order, expected enums.OrderStatus) error {
	if order.Status == expected {
		return nil
	}
	if order.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled").
			WithDetails(map[string]string{"status": order.Status.String()})
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed from current state").
		WithDetails(map[string]string{"status": order.Status.String()})
}

// Reference is the ledger correlation id all of an order's entries share.
func Reference(orderID uuid.UUID) string {
	return fmt.Sprintf("ORDER-%s", orderID)
}
