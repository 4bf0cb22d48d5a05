package wallets

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/internal/ledger"
	"github.com/becoinapp/becoin-backend/pkg/config"
	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/pagination"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type statusChange struct {
	ID     uuid.UUID
	Status enums.TransactionStatus
}

type fakeLedger struct {
	entries  []ledger.RecordEntryInput
	statuses []statusChange
	findFn   func(reference string, txnType enums.TransactionType) (*models.Transaction, error)
}

func (f *fakeLedger) Record(ctx context.Context, tx *gorm.DB, input ledger.RecordEntryInput) (*models.Transaction, error) {
	f.entries = append(f.entries, input)
	return &models.Transaction{
		ID:          uuid.New(),
		WalletID:    input.WalletID,
		Type:        input.Type,
		Status:      input.Status,
		Amount:      input.Amount,
		PostBalance: input.PostBalance,
		Reference:   input.Reference,
	}, nil
}

func (f *fakeLedger) MarkStatus(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, status enums.TransactionStatus) error {
	f.statuses = append(f.statuses, statusChange{ID: transactionID, Status: status})
	return nil
}

func (f *fakeLedger) FindByReference(ctx context.Context, tx *gorm.DB, reference string, txnType enums.TransactionType) (*models.Transaction, error) {
	if f.findFn != nil {
		return f.findFn(reference, txnType)
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
}

func (f *fakeLedger) ListByWallet(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.Transaction, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeLedger) ReplayAvailable(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func newTestService(t *testing.T, repo *fakeRepository, fl *fakeLedger) Service {
	t.Helper()
	manager := newTestManager(t, repo)
	pricing := config.PricingConfig{
		DeliveryPrice:   decimal.RequireFromString("5.00"),
		BecoinUnitPrice: decimal.RequireFromString("0.50"),
	}
	svc, err := NewService(repo, manager, fl, fakeTxRunner{}, pricing, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestServiceEnsureWalletCreates(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakeLedger{})

	userID := uuid.New()
	wallet, err := svc.EnsureWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("EnsureWallet error: %v", err)
	}
	if wallet.UserID != userID {
		t.Fatalf("wallet bound to wrong user: %s", wallet.UserID)
	}
	if !wallet.AvailableBalance.IsZero() || !wallet.LockedBalance.IsZero() {
		t.Fatalf("new wallet must start empty: %s / %s", wallet.AvailableBalance, wallet.LockedBalance)
	}

	again, err := svc.EnsureWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("EnsureWallet error: %v", err)
	}
	if again.ID != wallet.ID {
		t.Fatalf("second call must return the same wallet")
	}
}

func TestServiceGetBalanceNotFound(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakeLedger{})

	_, err := svc.GetBalance(context.Background(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestServiceRecharge(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "0", "0")
	fl := &fakeLedger{}
	svc := newTestService(t, repo, fl)

	// 10.00 external at 0.50 per becoin buys 20 becoin.
	updated, err := svc.Recharge(context.Background(), RechargeInput{
		UserID:    wallet.UserID,
		Amount:    decimal.RequireFromString("10.00"),
		Reference: "PAY-123",
	})
	if err != nil {
		t.Fatalf("Recharge error: %v", err)
	}
	if !updated.AvailableBalance.Equal(decimal.RequireFromString("20")) {
		t.Fatalf("unexpected balance: %s", updated.AvailableBalance)
	}
	if len(fl.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(fl.entries))
	}
	entry := fl.entries[0]
	if entry.Type != enums.TransactionTypeRecharge || entry.Status != enums.TransactionStatusPending {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("20")) || !entry.PostBalance.Equal(updated.AvailableBalance) {
		t.Fatalf("unexpected entry amounts: %+v", entry)
	}
	if entry.Reference != "PAY-123" {
		t.Fatalf("unexpected reference: %s", entry.Reference)
	}
}

func TestServiceRechargeValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(t, repo, &fakeLedger{})

	_, err := svc.Recharge(context.Background(), RechargeInput{UserID: uuid.New(), Amount: decimal.NewFromInt(10)})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Recharge(context.Background(), RechargeInput{UserID: uuid.New(), Amount: decimal.Zero, Reference: "PAY-1"})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestServiceRequestWithdraw(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "50.00", "0")
	fl := &fakeLedger{}
	svc := newTestService(t, repo, fl)

	updated, err := svc.RequestWithdraw(context.Background(), WithdrawInput{
		UserID:    wallet.UserID,
		Amount:    decimal.RequireFromString("20.00"),
		Reference: "PAYOUT-9",
	})
	if err != nil {
		t.Fatalf("RequestWithdraw error: %v", err)
	}
	if !updated.AvailableBalance.Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("unexpected balance: %s", updated.AvailableBalance)
	}
	entry := fl.entries[0]
	if entry.Type != enums.TransactionTypeWithdraw || entry.Status != enums.TransactionStatusPending {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if !entry.Amount.Equal(decimal.RequireFromString("-20.00")) {
		t.Fatalf("withdraw entry must be negative: %s", entry.Amount)
	}
}

func TestServiceRequestWithdrawInsufficientFunds(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "5.00", "0")
	svc := newTestService(t, repo, &fakeLedger{})

	_, err := svc.RequestWithdraw(context.Background(), WithdrawInput{
		UserID:    wallet.UserID,
		Amount:    decimal.RequireFromString("5.01"),
		Reference: "PAYOUT-1",
	})
	assertCode(t, err, pkgerrors.CodeInsufficientFunds)
}

func TestServiceConfirmRecharge(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "20.00", "0")
	txnID := uuid.New()
	fl := &fakeLedger{
		findFn: func(reference string, txnType enums.TransactionType) (*models.Transaction, error) {
			return &models.Transaction{
				ID:       txnID,
				WalletID: wallet.ID,
				Type:     txnType,
				Status:   enums.TransactionStatusPending,
				Amount:   decimal.RequireFromString("20.00"),
			}, nil
		},
	}
	svc := newTestService(t, repo, fl)

	if err := svc.ConfirmRecharge(context.Background(), "PAY-123"); err != nil {
		t.Fatalf("ConfirmRecharge error: %v", err)
	}
	if len(fl.statuses) != 1 || fl.statuses[0].ID != txnID || fl.statuses[0].Status != enums.TransactionStatusCompleted {
		t.Fatalf("unexpected status changes: %+v", fl.statuses)
	}
	// Confirmation settles in place: the balance moved at request time.
	if !repo.wallets[wallet.ID].AvailableBalance.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("balance must not move on confirm: %s", repo.wallets[wallet.ID].AvailableBalance)
	}
	if len(fl.entries) != 0 {
		t.Fatalf("confirm must not append entries: %+v", fl.entries)
	}
}

func TestServiceFailRechargeReversesBalance(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "20.00", "0")
	txnID := uuid.New()
	fl := &fakeLedger{
		findFn: func(reference string, txnType enums.TransactionType) (*models.Transaction, error) {
			return &models.Transaction{
				ID:       txnID,
				WalletID: wallet.ID,
				Type:     txnType,
				Status:   enums.TransactionStatusPending,
				Amount:   decimal.RequireFromString("20.00"),
			}, nil
		},
	}
	svc := newTestService(t, repo, fl)

	if err := svc.FailRecharge(context.Background(), "PAY-123", "card declined"); err != nil {
		t.Fatalf("FailRecharge error: %v", err)
	}
	if fl.statuses[0].Status != enums.TransactionStatusFailed {
		t.Fatalf("original entry must be marked failed: %+v", fl.statuses)
	}
	if !repo.wallets[wallet.ID].AvailableBalance.IsZero() {
		t.Fatalf("optimistic credit not reversed: %s", repo.wallets[wallet.ID].AvailableBalance)
	}
	if len(fl.entries) != 1 {
		t.Fatalf("expected adjustment entry, got %d", len(fl.entries))
	}
	adj := fl.entries[0]
	if adj.Type != enums.TransactionTypeAdjustment || adj.Status != enums.TransactionStatusCompleted {
		t.Fatalf("unexpected adjustment entry: %+v", adj)
	}
	if !adj.Amount.Equal(decimal.RequireFromString("-20.00")) {
		t.Fatalf("adjustment must mirror the original: %s", adj.Amount)
	}
	if !strings.Contains(adj.Reference, "card declined") {
		t.Fatalf("reason missing from reference: %s", adj.Reference)
	}
}

func TestServiceFailWithdrawRestoresBalance(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "30.00", "0")
	fl := &fakeLedger{
		findFn: func(reference string, txnType enums.TransactionType) (*models.Transaction, error) {
			return &models.Transaction{
				ID:       uuid.New(),
				WalletID: wallet.ID,
				Type:     txnType,
				Status:   enums.TransactionStatusPending,
				Amount:   decimal.RequireFromString("-20.00"),
			}, nil
		},
	}
	svc := newTestService(t, repo, fl)

	if err := svc.FailWithdraw(context.Background(), "PAYOUT-9", "payout rejected"); err != nil {
		t.Fatalf("FailWithdraw error: %v", err)
	}
	if !repo.wallets[wallet.ID].AvailableBalance.Equal(decimal.RequireFromString("50.00")) {
		t.Fatalf("debit not reversed: %s", repo.wallets[wallet.ID].AvailableBalance)
	}
	if !fl.entries[0].Amount.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("adjustment must credit back: %s", fl.entries[0].Amount)
	}
}

func TestServiceSettleRedeliveryIsNoOp(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "20.00", "0")
	fl := &fakeLedger{
		findFn: func(reference string, txnType enums.TransactionType) (*models.Transaction, error) {
			return &models.Transaction{
				ID:       uuid.New(),
				WalletID: wallet.ID,
				Type:     txnType,
				Status:   enums.TransactionStatusCompleted,
				Amount:   decimal.RequireFromString("20.00"),
			}, nil
		},
	}
	svc := newTestService(t, repo, fl)

	if err := svc.ConfirmRecharge(context.Background(), "PAY-123"); err != nil {
		t.Fatalf("redelivered confirm must be a no-op: %v", err)
	}
	if len(fl.statuses) != 0 || len(fl.entries) != 0 {
		t.Fatalf("no-op settle touched the ledger: %+v %+v", fl.statuses, fl.entries)
	}
}

func TestServiceSettleConflictingOutcome(t *testing.T) {
	repo := newFakeRepository()
	wallet := seedWallet(repo, "20.00", "0")
	fl := &fakeLedger{
		findFn: func(reference string, txnType enums.TransactionType) (*models.Transaction, error) {
			return &models.Transaction{
				ID:       uuid.New(),
				WalletID: wallet.ID,
				Type:     txnType,
				Status:   enums.TransactionStatusFailed,
				Amount:   decimal.RequireFromString("20.00"),
			}, nil
		},
	}
	svc := newTestService(t, repo, fl)

	err := svc.ConfirmRecharge(context.Background(), "PAY-123")
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestServiceTransfer(t *testing.T) {
	repo := newFakeRepository()
	sender := seedWallet(repo, "100.00", "0")
	receiver := seedWallet(repo, "1.00", "0")
	fl := &fakeLedger{}
	svc := newTestService(t, repo, fl)

	updated, err := svc.Transfer(context.Background(), TransferInput{
		FromUserID: sender.UserID,
		ToWalletID: receiver.ID,
		Amount:     decimal.RequireFromString("25.00"),
	})
	if err != nil {
		t.Fatalf("Transfer error: %v", err)
	}
	if !updated.AvailableBalance.Equal(decimal.RequireFromString("75.00")) {
		t.Fatalf("unexpected sender balance: %s", updated.AvailableBalance)
	}
	if !repo.wallets[receiver.ID].AvailableBalance.Equal(decimal.RequireFromString("26.00")) {
		t.Fatalf("unexpected receiver balance: %s", repo.wallets[receiver.ID].AvailableBalance)
	}

	if len(fl.entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(fl.entries))
	}
	send, recv := fl.entries[0], fl.entries[1]
	if send.Type != enums.TransactionTypeTransferSend || recv.Type != enums.TransactionTypeTransferReceived {
		t.Fatalf("unexpected entry types: %s / %s", send.Type, recv.Type)
	}
	if !send.Amount.Equal(decimal.RequireFromString("-25.00")) || !recv.Amount.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("unexpected amounts: %s / %s", send.Amount, recv.Amount)
	}
	if send.Reference != recv.Reference || !strings.HasPrefix(send.Reference, "TRANSFER-") {
		t.Fatalf("both legs must share one reference: %s / %s", send.Reference, recv.Reference)
	}
	if send.Status != enums.TransactionStatusCompleted || recv.Status != enums.TransactionStatusCompleted {
		t.Fatalf("transfers settle in place: %+v", fl.entries)
	}
	if send.RelatedWalletID == nil || *send.RelatedWalletID != receiver.ID {
		t.Fatalf("send leg must reference the receiver")
	}
	if recv.RelatedWalletID == nil || *recv.RelatedWalletID != sender.ID {
		t.Fatalf("receive leg must reference the sender")
	}
}

func TestServiceTransferToOwnWallet(t *testing.T) {
	repo := newFakeRepository()
	sender := seedWallet(repo, "100.00", "0")
	svc := newTestService(t, repo, &fakeLedger{})

	_, err := svc.Transfer(context.Background(), TransferInput{
		FromUserID: sender.UserID,
		ToWalletID: sender.ID,
		Amount:     decimal.NewFromInt(1),
	})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestServiceTransferInsufficientFunds(t *testing.T) {
	repo := newFakeRepository()
	sender := seedWallet(repo, "10.00", "0")
	receiver := seedWallet(repo, "0", "0")
	svc := newTestService(t, repo, &fakeLedger{})

	_, err := svc.Transfer(context.Background(), TransferInput{
		FromUserID: sender.UserID,
		ToWalletID: receiver.ID,
		Amount:     decimal.RequireFromString("10.01"),
	})
	assertCode(t, err, pkgerrors.CodeInsufficientFunds)
	if !repo.wallets[receiver.ID].AvailableBalance.IsZero() {
		t.Fatalf("receiver credited on failed transfer")
	}
}
