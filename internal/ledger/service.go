package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/metrics"
	"github.com/becoinapp/becoin-backend/pkg/pagination"
)

// Service appends and reads the append-only transaction ledger. Entries are
// written inside the caller's transaction so a balance mutation and its audit
// row commit or roll back together. Amount is signed from the owning wallet's
// perspective and PostBalance is stored verbatim: callers mutate the balance
// first, read the result, then record.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.Transaction, error)
	MarkStatus(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, status enums.TransactionStatus) error
	FindByReference(ctx context.Context, tx *gorm.DB, reference string, txnType enums.TransactionType) (*models.Transaction, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.Transaction, *pagination.Cursor, error)
	ReplayAvailable(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

// RecordEntryInput captures the immutable data a ledger entry requires.
type RecordEntryInput struct {
	WalletID        uuid.UUID
	RelatedWalletID *uuid.UUID
	Type            enums.TransactionType
	Status          enums.TransactionStatus
	Amount          decimal.Decimal
	PostBalance     decimal.Decimal
	Reference       string
}

type service struct {
	repo    Repository
	metrics *metrics.EngineMetrics
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, engineMetrics *metrics.EngineMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, metrics: engineMetrics}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordEntryInput) (*models.Transaction, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction handle required")
	}
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction status %q", input.Status))
	}
	if input.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}

	txn := &models.Transaction{
		WalletID:        input.WalletID,
		RelatedWalletID: input.RelatedWalletID,
		Type:            input.Type,
		Status:          input.Status,
		Amount:          input.Amount,
		PostBalance:     input.PostBalance,
		Reference:       input.Reference,
	}
	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	s.metrics.IncLedgerEntry(input.Type.String())
	return txn, nil
}

func (s *service) MarkStatus(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, status enums.TransactionStatus) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction handle required")
	}
	if transactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction status %q", status))
	}
	if err := s.repo.WithTx(tx).UpdateStatus(ctx, transactionID, status); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ledger entry status")
	}
	return nil
}

func (s *service) FindByReference(ctx context.Context, tx *gorm.DB, reference string, txnType enums.TransactionType) (*models.Transaction, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference required")
	}
	txn, err := s.repo.WithTx(tx).FindByReferenceAndType(ctx, reference, txnType)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	return txn, nil
}

func (s *service) ListByWallet(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.Transaction, *pagination.Cursor, error) {
	if walletID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	txns, next, err := s.repo.ListByWallet(ctx, walletID, listParams{Limit: params.Limit, Cursor: cursor})
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return txns, next, nil
}

// ReplayAvailable sums the signed amounts of every ledger entry for the
// wallet in creation order. The result must equal the wallet's current
// available balance; a mismatch means an entry was written outside the
// balance mutation's transaction.
func (s *service) ReplayAvailable(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	if walletID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	txns, err := s.repo.ListAllByWallet(ctx, walletID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay ledger")
	}
	total := decimal.Zero
	for _, txn := range txns {
		total = total.Add(txn.Amount)
	}
	return total, nil
}
