package wallets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/internal/ledger"
	"github.com/becoinapp/becoin-backend/pkg/config"
	"github.com/becoinapp/becoin-backend/pkg/db"
	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the user-facing wallet operations. Recharges and withdraws
// apply their balance effect immediately and settle asynchronously when the
// payment gateway confirms or fails the external movement; transfers settle
// in place.
type Service interface {
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Recharge(ctx context.Context, input RechargeInput) (*models.Wallet, error)
	ConfirmRecharge(ctx context.Context, reference string) error
	FailRecharge(ctx context.Context, reference, reason string) error
	RequestWithdraw(ctx context.Context, input WithdrawInput) (*models.Wallet, error)
	ConfirmWithdraw(ctx context.Context, reference string) error
	FailWithdraw(ctx context.Context, reference, reason string) error
	Transfer(ctx context.Context, input TransferInput) (*models.Wallet, error)
}

// RechargeInput tops up a wallet. Amount is denominated in the external
// currency the gateway charged; Reference is the gateway's correlation id.
type RechargeInput struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// WithdrawInput moves becoin out of a wallet towards a gateway payout.
type WithdrawInput struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Reference string
}

// TransferInput moves becoin between two wallets in one settlement.
type TransferInput struct {
	FromUserID uuid.UUID
	ToWalletID uuid.UUID
	Amount     decimal.Decimal
}

type service struct {
	repo    Repository
	manager Manager
	ledger  ledger.Service
	tx      txRunner
	pricing config.PricingConfig
	metrics *metrics.EngineMetrics
}

// NewService builds a wallet service with the required dependencies.
func NewService(repo Repository, manager Manager, ledgerSvc ledger.Service, tx txRunner, pricing config.PricingConfig, engineMetrics *metrics.EngineMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallets repository required")
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
		repo:    repo,
		manager: manager,
		ledger:  ledgerSvc,
		tx:      tx,
		pricing: pricing,
		metrics: engineMetrics,
	}, nil
}

func (s *service) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	created, err := s.repo.Create(ctx, &models.Wallet{
		UserID:           userID,
		AvailableBalance: decimal.Zero,
		LockedBalance:    decimal.Zero,
	})
	if err != nil {
		// Concurrent provisioning loses the insert race on user_id.
		if db.IsUniqueViolation(err, "") {
			return s.GetBalance(ctx, userID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
	}
	return created, nil
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) Recharge(ctx context.Context, input RechargeInput) (*models.Wallet, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	becoin := s.pricing.ToBecoin(input.Amount)

	var updated *models.Wallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.manager.ByUser(ctx, tx, input.UserID)
		if err != nil {
			return err
		}
		wallet, err = s.manager.Credit(ctx, tx, wallet.ID, becoin)
		if err != nil {
			return err
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			WalletID:    wallet.ID,
			Type:        enums.TransactionTypeRecharge,
			Status:      enums.TransactionStatusPending,
			Amount:      becoin,
			PostBalance: wallet.AvailableBalance,
			Reference:   input.Reference,
		}); err != nil {
			return err
		}
		updated = wallet
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) ConfirmRecharge(ctx context.Context, reference string) error {
	return s.settle(ctx, reference, enums.TransactionTypeRecharge, true, "")
}

func (s *service) FailRecharge(ctx context.Context, reference, reason string) error {
	return s.settle(ctx, reference, enums.TransactionTypeRecharge, false, reason)
}

func (s *service) RequestWithdraw(ctx context.Context, input WithdrawInput) (*models.Wallet, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var updated *models.Wallet
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.manager.ByUser(ctx, tx, input.UserID)
		if err != nil {
			return err
		}
		wallet, err = s.manager.Debit(ctx, tx, wallet.ID, input.Amount)
		if err != nil {
			return err
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			WalletID:    wallet.ID,
			Type:        enums.TransactionTypeWithdraw,
			Status:      enums.TransactionStatusPending,
			Amount:      input.Amount.Neg(),
			PostBalance: wallet.AvailableBalance,
			Reference:   input.Reference,
		}); err != nil {
			return err
		}
		updated = wallet
		return nil
	})
	if err != nil {
		s.countInsufficientFunds("withdraw", err)
		return nil, err
	}
	return updated, nil
}

func (s *service) ConfirmWithdraw(ctx context.Context, reference string) error {
	return s.settle(ctx, reference, enums.TransactionTypeWithdraw, true, "")
}

func (s *service) FailWithdraw(ctx context.Context, reference, reason string) error {
	return s.settle(ctx, reference, enums.TransactionTypeWithdraw, false, reason)
}

// settle resolves a pending recharge or withdraw after the gateway reports
// the outcome. Failure reverses the optimistic balance effect with an
// explicit adjustment entry so ledger replay stays exact; the original entry
// only ever changes status. Re-delivery of the same outcome is a no-op.
func (s *service) settle(ctx context.Context, reference string, txnType enums.TransactionType, confirmed bool, reason string) error {
	if reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, err := s.ledger.FindByReference(ctx, tx, reference, txnType)
		if err != nil {
			return err
		}

		target := enums.TransactionStatusCompleted
		if !confirmed {
			target = enums.TransactionStatusFailed
		}
		if txn.Status == target {
			return nil
		}
		if txn.Status != enums.TransactionStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already settled").
				WithDetails(map[string]string{"status": txn.Status.String()})
		}

		if err := s.ledger.MarkStatus(ctx, tx, txn.ID, target); err != nil {
			return err
		}
		if confirmed {
			return nil
		}

		// Reverse the optimistic effect: recharges credited on request are
		// debited back, withdraws debited on request are credited back.
		reversal := txn.Amount.Neg()
		var wallet *models.Wallet
		if reversal.IsNegative() {
			wallet, err = s.manager.Debit(ctx, tx, txn.WalletID, reversal.Neg())
		} else {
			wallet, err = s.manager.Credit(ctx, tx, txn.WalletID, reversal)
		}
		if err != nil {
			return err
		}

		adjustmentRef := reference
		if reason != "" {
			adjustmentRef = fmt.Sprintf("%s (%s)", reference, reason)
		}
		_, err = s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			WalletID:    wallet.ID,
			Type:        enums.TransactionTypeAdjustment,
			Status:      enums.TransactionStatusCompleted,
			Amount:      reversal,
			PostBalance: wallet.AvailableBalance,
			Reference:   adjustmentRef,
		})
		return err
	})
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*models.Wallet, error) {
	if input.FromUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sender user id required")
	}
	if input.ToWalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination wallet id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	sender, err := s.GetBalance(ctx, input.FromUserID)
	if err != nil {
		return nil, err
	}
	if sender.ID == input.ToWalletID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer to own wallet")
	}

	reference := fmt.Sprintf("TRANSFER-%s", uuid.New())

	var updated *models.Wallet
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// Lock both rows in a fixed order so two opposing transfers cannot
		// deadlock each other.
		first, second := sender.ID, input.ToWalletID
		if second.String() < first.String() {
			first, second = second, first
		}
		if _, err := s.manager.ByID(ctx, tx, first); err != nil {
			return err
		}
		if _, err := s.manager.ByID(ctx, tx, second); err != nil {
			return err
		}

		debited, err := s.manager.Debit(ctx, tx, sender.ID, input.Amount)
		if err != nil {
			return err
		}
		credited, err := s.manager.Credit(ctx, tx, input.ToWalletID, input.Amount)
		if err != nil {
			return err
		}

		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			WalletID:        debited.ID,
			RelatedWalletID: &credited.ID,
			Type:            enums.TransactionTypeTransferSend,
			Status:          enums.TransactionStatusCompleted,
			Amount:          input.Amount.Neg(),
			PostBalance:     debited.AvailableBalance,
			Reference:       reference,
		}); err != nil {
			return err
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordEntryInput{
			WalletID:        credited.ID,
			RelatedWalletID: &debited.ID,
			Type:            enums.TransactionTypeTransferReceived,
			Status:          enums.TransactionStatusCompleted,
			Amount:          input.Amount,
			PostBalance:     credited.AvailableBalance,
			Reference:       reference,
		}); err != nil {
			return err
		}
		updated = debited
		return nil
	})
	if err != nil {
		s.countInsufficientFunds("transfer", err)
		return nil, err
	}
	return updated, nil
}

func (s *service) countInsufficientFunds(operation string, err error) {
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientFunds {
		s.metrics.IncInsufficientFunds(operation)
	}
}
