package wallets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/pkg/db/models"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
)

// UnlockMode controls what happens to funds leaving the locked balance.
type UnlockMode string

const (
	// UnlockRelease returns the amount to the available balance.
	UnlockRelease UnlockMode = "release"
	// UnlockCapture discards the amount; it has left the wallet for good.
	UnlockCapture UnlockMode = "capture"
)

// Manager exposes the atomic balance mutations every money-moving flow is
// built from. Every method requires the caller's open transaction handle and
// loads the wallet row under a FOR UPDATE lock, so concurrent mutations of
// the same wallet serialize instead of losing updates.
type Manager interface {
	ByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error)
	ByID(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (*models.Wallet, error)
	Platform(ctx context.Context, tx *gorm.DB) (*models.Wallet, error)
	Debit(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	Credit(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	Lock(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	Unlock(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal, mode UnlockMode) (*models.Wallet, error)
}

type manager struct {
	repo Repository
}

// NewManager wires a balance manager with the provided repository.
func NewManager(repo Repository) (Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	return &manager{repo: repo}, nil
}

func (m *manager) ByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.Wallet, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	wallet, err := m.repo.WithTx(tx).FindByUserIDForUpdate(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (m *manager) ByID(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (*models.Wallet, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	return m.lockWallet(ctx, tx, walletID)
}

func (m *manager) Platform(ctx context.Context, tx *gorm.DB) (*models.Wallet, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	wallet, err := m.repo.WithTx(tx).FindPlatformForUpdate(ctx)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "platform wallet not provisioned")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load platform wallet")
	}
	return wallet, nil
}

func (m *manager) Debit(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	wallet, err := m.prepare(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	if wallet.AvailableBalance.LessThan(amount) {
		return nil, insufficientFunds(amount, wallet.AvailableBalance)
	}
	wallet.AvailableBalance = wallet.AvailableBalance.Sub(amount)
	return m.save(ctx, tx, wallet)
}

func (m *manager) Credit(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	wallet, err := m.prepare(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	wallet.AvailableBalance = wallet.AvailableBalance.Add(amount)
	return m.save(ctx, tx, wallet)
}

func (m *manager) Lock(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	wallet, err := m.prepare(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	if wallet.AvailableBalance.LessThan(amount) {
		return nil, insufficientFunds(amount, wallet.AvailableBalance)
	}
	wallet.AvailableBalance = wallet.AvailableBalance.Sub(amount)
	wallet.LockedBalance = wallet.LockedBalance.Add(amount)
	return m.save(ctx, tx, wallet)
}

func (m *manager) Unlock(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal, mode UnlockMode) (*models.Wallet, error) {
	wallet, err := m.prepare(ctx, tx, walletID, amount)
	if err != nil {
		return nil, err
	}
	if wallet.LockedBalance.LessThan(amount) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "locked balance below unlock amount").
			WithDetails(map[string]string{
				"requested": amount.StringFixed(2),
				"locked":    wallet.LockedBalance.StringFixed(2),
			})
	}
	wallet.LockedBalance = wallet.LockedBalance.Sub(amount)
	if mode == UnlockRelease {
		wallet.AvailableBalance = wallet.AvailableBalance.Add(amount)
	}
	return m.save(ctx, tx, wallet)
}

func (m *manager) prepare(ctx context.Context, tx *gorm.DB, walletID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if err := requireTx(tx); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	return m.lockWallet(ctx, tx, walletID)
}

func (m *manager) lockWallet(ctx context.Context, tx *gorm.DB, walletID uuid.UUID) (*models.Wallet, error) {
	wallet, err := m.repo.WithTx(tx).FindByIDForUpdate(ctx, walletID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (m *manager) save(ctx context.Context, tx *gorm.DB, wallet *models.Wallet) (*models.Wallet, error) {
	if err := m.repo.WithTx(tx).SaveBalances(ctx, wallet); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist wallet balances")
	}
	return wallet, nil
}

func requireTx(tx *gorm.DB) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction handle required")
	}
	return nil
}

func insufficientFunds(requested, available decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance too low").
		WithDetails(map[string]string{
			"requested": requested.StringFixed(2),
			"available": available.StringFixed(2),
		})
}
