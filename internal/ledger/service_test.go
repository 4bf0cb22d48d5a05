package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/becoinapp/becoin-backend/pkg/db/models"
	"github.com/becoinapp/becoin-backend/pkg/enums"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
	"github.com/becoinapp/becoin-backend/pkg/pagination"
)

type fakeRepository struct {
	created  []*models.Transaction
	statuses map[uuid.UUID]enums.TransactionStatus
	all      []models.Transaction
	findErr  error
	found    *models.Transaction
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, txn *models.Transaction) error {
	txn.ID = uuid.New()
	f.created = append(f.created, txn)
	return nil
}

func (f *fakeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByReferenceAndType(ctx context.Context, reference string, txnType enums.TransactionType) (*models.Transaction, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.found, nil
}

func (f *fakeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.TransactionStatus) error {
	if f.statuses == nil {
		f.statuses = map[uuid.UUID]enums.TransactionStatus{}
	}
	f.statuses[id] = status
	return nil
}

func (f *fakeRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, params listParams) ([]models.Transaction, *pagination.Cursor, error) {
	return f.all, nil, nil
}

func (f *fakeRepository) ListAllByWallet(ctx context.Context, walletID uuid.UUID) ([]models.Transaction, error) {
	return f.all, nil
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, typed.Code(), err)
	}
}

func TestServiceRecord(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo)

	related := uuid.New()
	input := RecordEntryInput{
		WalletID:        uuid.New(),
		RelatedWalletID: &related,
		Type:            enums.TransactionTypePurchase,
		Status:          enums.TransactionStatusPending,
		Amount:          decimal.RequireFromString("-42.50"),
		PostBalance:     decimal.RequireFromString("57.50"),
		Reference:       "ORDER-abc",
	}
	txn, err := svc.Record(context.Background(), &gorm.DB{}, input)
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 created entry, got %d", len(repo.created))
	}
	created := repo.created[0]
	if created.WalletID != input.WalletID || created.Type != input.Type || created.Status != input.Status {
		t.Fatalf("unexpected entry: %+v", created)
	}
	if !created.Amount.Equal(input.Amount) || !created.PostBalance.Equal(input.PostBalance) {
		t.Fatalf("amounts not stored verbatim: %+v", created)
	}
	if created.RelatedWalletID == nil || *created.RelatedWalletID != related {
		t.Fatalf("related wallet lost: %+v", created)
	}
	if txn != created {
		t.Fatalf("service should return the created entry")
	}
}

func TestServiceRecordValidation(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo)

	valid := RecordEntryInput{
		WalletID:    uuid.New(),
		Type:        enums.TransactionTypeRecharge,
		Status:      enums.TransactionStatusPending,
		Amount:      decimal.NewFromInt(1),
		PostBalance: decimal.NewFromInt(1),
		Reference:   "PAY-1",
	}

	if _, err := svc.Record(context.Background(), nil, valid); pkgerrors.As(err) == nil || pkgerrors.As(err).Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error without tx handle, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(input *RecordEntryInput)
	}{
		{name: "missing wallet", mutate: func(i *RecordEntryInput) { i.WalletID = uuid.Nil }},
		{name: "invalid type", mutate: func(i *RecordEntryInput) { i.Type = "cashback" }},
		{name: "invalid status", mutate: func(i *RecordEntryInput) { i.Status = "maybe" }},
		{name: "missing reference", mutate: func(i *RecordEntryInput) { i.Reference = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			_, err := svc.Record(context.Background(), &gorm.DB{}, input)
			assertCode(t, err, pkgerrors.CodeValidation)
		})
	}
	if len(repo.created) != 0 {
		t.Fatalf("invalid inputs must not create entries")
	}
}

func TestServiceMarkStatus(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo)

	id := uuid.New()
	if err := svc.MarkStatus(context.Background(), &gorm.DB{}, id, enums.TransactionStatusCompleted); err != nil {
		t.Fatalf("MarkStatus error: %v", err)
	}
	if repo.statuses[id] != enums.TransactionStatusCompleted {
		t.Fatalf("status not persisted: %v", repo.statuses)
	}

	err := svc.MarkStatus(context.Background(), &gorm.DB{}, uuid.Nil, enums.TransactionStatusCompleted)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestServiceFindByReferenceNotFound(t *testing.T) {
	repo := &fakeRepository{findErr: gorm.ErrRecordNotFound}
	svc := newTestService(t, repo)

	_, err := svc.FindByReference(context.Background(), &gorm.DB{}, "PAY-404", enums.TransactionTypeRecharge)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestServiceReplayAvailable(t *testing.T) {
	repo := &fakeRepository{
		all: []models.Transaction{
			{Amount: decimal.RequireFromString("20.00")},
			{Amount: decimal.RequireFromString("-7.50")},
			{Amount: decimal.RequireFromString("3.25")},
		},
	}
	svc := newTestService(t, repo)

	total, err := svc.ReplayAvailable(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("ReplayAvailable error: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("15.75")) {
		t.Fatalf("unexpected replay total: %s", total)
	}
}
