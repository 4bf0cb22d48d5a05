package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/internal/carts"
	"github.com/becoinapp/becoin-backend/internal/ledger"
	"github.com/becoinapp/becoin-backend/internal/orders"
	"github.com/becoinapp/becoin-backend/internal/wallets"
	"github.com/becoinapp/becoin-backend/pkg/config"
	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service materializes a cart into an order and collects payment in one
// transaction. A failure at any step leaves no partial order behind.
type Service interface {
	CreateOrderFromCart(ctx context.Context, buyerID uuid.UUID) (*models.Order, error)
}

type service struct {
	carts   carts.Repository
	orders  orders.Repository
	manager wallets.Manager
	ledger  ledger.Service
	tx      txRunner
	pricing config.PricingConfig
	metrics *metrics.EngineMetrics
}

// NewService builds a checkout service with the required dependencies.
func NewService(cartsRepo carts.Repository, ordersRepo orders.Repository, manager wallets.Manager, ledgerSvc ledger.Service, tx txRunner, pricing config.PricingConfig, engineMetrics *metrics.EngineMetrics) (Service, error) {
	if cartsRepo == nil {
		return nil, fmt.Errorf("carts repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if manager == nil {
		return nil, fmt.Errorf("balance manager required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		carts:   cartsRepo,
		orders:  ordersRepo,
		manager: manager,
		ledger:  ledgerSvc,
		tx:      tx,
		pricing: pricing,
		metrics: engineMetrics,
	}, nil
}

func (s *service) CreateOrderFromCart(ctx context.Context, buyerID uuid.UUID) (*models.Order, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	started := time.Now()
	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartsRepo := s.carts.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		cart, err := cartsRepo.FindByUserID(ctx, buyerID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(cart.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		paymentType, err := resolvePaymentType(cart)
		if err != nil {
			return err
		}

		// Recompute from the items instead of trusting the stored subtotal.
		subtotal := decimal.Zero
		for _, item := range cart.Items {
			subtotal = subtotal.Add(item.TotalPrice)
		}
		delivery := s.pricing.DeliveryPrice
		total := subtotal.Add(delivery)
		subtotalBecoin := s.pricing.ToBecoin(subtotal)
		deliveryBecoin := s.pricing.ToBecoin(delivery)
		totalBecoin := subtotalBecoin.Add(deliveryBecoin)

		code, err := drawCode(ctx, ordersRepo)
		if err != nil {
			return err
		}

		order := &models.Order{
			BuyerID:           buyerID,
			GroupID:           cart.GroupID,
			DeliveryAddressID: cart.DeliveryAddressID,
			Code:              code,
			Status:            enums.OrderStatusPending,
			PaymentType:       paymentType,
			SubtotalAmount:    subtotal,
			DeliverySurcharge: delivery,
			TotalAmount:       total,
			SubtotalBecoin:    subtotalBecoin,
			DeliveryBecoin:    deliveryBecoin,
			TotalBecoin:       totalBecoin,
			Items:             copyItems(cart.Items),
		}
		if _, err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if err := s.collectPayment(ctx, tx, ordersRepo, order, buyerID); err != nil {
			return err
		}

		if err := cartsRepo.Reset(ctx, cart.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset cart")
		}
		created = order
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientFunds {
			s.metrics.IncInsufficientFunds("checkout")
		}
		return nil, err
	}
	s.metrics.ObserveCheckout(created.PaymentType.String(), time.Since(started))
	s.metrics.IncOrderTransition(enums.OrderStatusPending.String())
	return created, nil
}

// collectPayment runs the full-payment strategy: reserve the order total on
// the buyer's wallet and open the matching payment and ledger rows, all
// still pending until delivery or cancellation settles them.
func (s *service) collectPayment(ctx context.Context, tx *gorm.DB, ordersRepo orders.Repository, order *models.Order, buyerID uuid.UUID) error {
	wallet, err := s.manager.ByUser(ctx, tx, buyerID)
	if err != nil {
		return err
	}
	wallet, err = s.manager.Lock(ctx, tx, wallet.ID, order.TotalBecoin)
	if err != nil {
		return err
	}

	txn, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
		WalletID:    wallet.ID,
		Type:        enums.TransactionTypePurchase,
		Status:      enums.TransactionStatusPending,
		Amount:      order.TotalBecoin.Neg(),
		PostBalance: wallet.AvailableBalance,
		Reference:   orders.Reference(order.ID),
	})
	if err != nil {
		return err
	}

	if _, err := ordersRepo.CreatePayment(ctx, &models.Payment{
		OrderID:       order.ID,
		WalletID:      wallet.ID,
		TransactionID: &txn.ID,
		AmountPaid:    order.TotalBecoin,
		Status:        enums.PaymentStatusPending,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	return nil
}

// resolvePaymentType picks the strategy for the order. Solo carts always
// pay in full; only group carts carry a configured choice.
func resolvePaymentType(cart *models.Cart) (enums.PaymentType, error) {
	if cart.GroupID == nil {
		return enums.PaymentTypeFull, nil
	}
	if cart.PaymentType == nil {
		return "", pkgerrors.New(pkgerrors.CodeConflict, "group cart has no payment type configured")
	}
	switch paymentType := *cart.PaymentType; paymentType {
	case enums.PaymentTypeFull:
		return paymentType, nil
	case enums.PaymentTypeEqualSplit, enums.PaymentTypeSplit:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment type %q not available yet", paymentType))
	default:
		return "", pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("unknown payment type %q", paymentType))
	}
}

func copyItems(items []models.CartItem) []models.OrderItem {
	copied := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		copied = append(copied, models.OrderItem{
			ProductID:  item.ProductID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			TotalPrice: item.TotalPrice,
		})
	}
	return copied
}
