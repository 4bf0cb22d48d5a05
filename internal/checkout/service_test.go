package checkout

import (
	"context"
	"strings"
	"testing"

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
	"github.com/becoinapp/becoin-backend/pkg/pagination"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeCartRepository struct {
	carts    map[uuid.UUID]*models.Cart
	resetIDs []uuid.UUID
}

func newFakeCartRepository() *fakeCartRepository {
	return &fakeCartRepository{carts: map[uuid.UUID]*models.Cart{}}
}

func (f *fakeCartRepository) WithTx(tx *gorm.DB) carts.Repository { return f }

func (f *fakeCartRepository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	f.carts[cart.ID] = cart
	return cart, nil
}

func (f *fakeCartRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	for _, cart := range f.carts {
		if cart.UserID == userID {
			return cart, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCartRepository) UpdateSettings(ctx context.Context, cartID uuid.UUID, updates map[string]any) error {
	return nil
}

func (f *fakeCartRepository) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	return nil
}

func (f *fakeCartRepository) Reset(ctx context.Context, cartID uuid.UUID) error {
	f.resetIDs = append(f.resetIDs, cartID)
	if cart, ok := f.carts[cartID]; ok {
		cart.Items = nil
		cart.PaymentType = nil
		cart.SubtotalAmount = decimal.Zero
	}
	return nil
}

type fakeOrderRepository struct {
	orders    map[uuid.UUID]*models.Order
	payments  map[uuid.UUID]*models.Payment
	usedCodes map[int]bool
}

func newFakeOrderRepository() *fakeOrderRepository {
	return &fakeOrderRepository{
		orders:    map[uuid.UUID]*models.Order{},
		payments:  map[uuid.UUID]*models.Payment{},
		usedCodes: map[int]bool{},
	}
}

func (f *fakeOrderRepository) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *fakeOrderRepository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order, nil
}

func (f *fakeOrderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeOrderRepository) List(ctx context.Context, buyerID uuid.UUID, params orders.ListParams) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeOrderRepository) UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return nil
}

func (f *fakeOrderRepository) CodeInUse(ctx context.Context, code int) (bool, error) {
	return f.usedCodes[code], nil
}

func (f *fakeOrderRepository) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	f.payments[payment.ID] = payment
	return payment, nil
}

func (f *fakeOrderRepository) FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	for _, payment := range f.payments {
		if payment.OrderID == orderID {
			return payment, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrderRepository) UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error {
	return nil
}

type fakeWalletRepository struct {
	wallets map[uuid.UUID]*models.Wallet
}

func newFakeWalletRepository() *fakeWalletRepository {
	return &fakeWalletRepository{wallets: map[uuid.UUID]*models.Wallet{}}
}

func (f *fakeWalletRepository) add(wallet *models.Wallet) *models.Wallet {
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	f.wallets[wallet.ID] = wallet
	return wallet
}

func (f *fakeWalletRepository) WithTx(tx *gorm.DB) wallets.Repository { return f }

func (f *fakeWalletRepository) Create(ctx context.Context, wallet *models.Wallet) (*models.Wallet, error) {
	return f.add(wallet), nil
}

func (f *fakeWalletRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	wallet, ok := f.wallets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *wallet
	return &copied, nil
}

func (f *fakeWalletRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	for _, wallet := range f.wallets {
		if wallet.UserID == userID {
			copied := *wallet
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeWalletRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeWalletRepository) FindByUserIDForUpdate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return f.FindByUserID(ctx, userID)
}

func (f *fakeWalletRepository) FindPlatformForUpdate(ctx context.Context) (*models.Wallet, error) {
	for _, wallet := range f.wallets {
		if wallet.IsPlatform {
			copied := *wallet
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeWalletRepository) SaveBalances(ctx context.Context, wallet *models.Wallet) error {
	stored, ok := f.wallets[wallet.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.AvailableBalance = wallet.AvailableBalance
	stored.LockedBalance = wallet.LockedBalance
	return nil
}

type fakeLedger struct {
	entries []ledger.RecordEntryInput
}

func (f *fakeLedger) Record(ctx context.Context, tx *gorm.DB, input ledger.RecordEntryInput) (*models.Transaction, error) {
	f.entries = append(f.entries, input)
	return &models.Transaction{ID: uuid.New(), WalletID: input.WalletID, Amount: input.Amount}, nil
}

func (f *fakeLedger) MarkStatus(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, status enums.TransactionStatus) error {
	return nil
}

func (f *fakeLedger) FindByReference(ctx context.Context, tx *gorm.DB, reference string, txnType enums.TransactionType) (*models.Transaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
}

func (f *fakeLedger) ListByWallet(ctx context.Context, walletID uuid.UUID, params pagination.Params) ([]models.Transaction, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeLedger) ReplayAvailable(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fixture struct {
	svc     Service
	carts   *fakeCartRepository
	orders  *fakeOrderRepository
	wallets *fakeWalletRepository
	ledger  *fakeLedger
	buyer   *models.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cartRepo := newFakeCartRepository()
	orderRepo := newFakeOrderRepository()
	walletRepo := newFakeWalletRepository()
	buyer := walletRepo.add(&models.Wallet{
		UserID:           uuid.New(),
		AvailableBalance: decimal.RequireFromString("100.00"),
	})

	manager, err := wallets.NewManager(walletRepo)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	fl := &fakeLedger{}
	pricing := config.PricingConfig{
		DeliveryPrice:   decimal.RequireFromString("5.00"),
		BecoinUnitPrice: decimal.RequireFromString("1.00"),
	}
	svc, err := NewService(cartRepo, orderRepo, manager, fl, fakeTxRunner{}, pricing, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return &fixture{svc: svc, carts: cartRepo, orders: orderRepo, wallets: walletRepo, ledger: fl, buyer: buyer}
}

func (f *fixture) seedCart(paymentType *enums.PaymentType, items ...models.CartItem) *models.Cart {
	cart := &models.Cart{
		ID:          uuid.New(),
		UserID:      f.buyer.UserID,
		PaymentType: paymentType,
		Items:       items,
	}
	f.carts.carts[cart.ID] = cart
	return cart
}

func (f *fixture) seedGroupCart(paymentType *enums.PaymentType, items ...models.CartItem) *models.Cart {
	cart := f.seedCart(paymentType, items...)
	groupID := uuid.New()
	cart.GroupID = &groupID
	return cart
}

func cartItem(name, unitPrice string, qty int) models.CartItem {
	unit := decimal.RequireFromString(unitPrice)
	return models.CartItem{
		ID:         uuid.New(),
		ProductID:  uuid.New(),
		Name:       name,
		UnitPrice:  unit,
		Quantity:   qty,
		TotalPrice: unit.Mul(decimal.NewFromInt(int64(qty))),
	}
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

func TestServiceCreateOrderFromCart(t *testing.T) {
	f := newFixture(t)
	paymentType := enums.PaymentTypeFull
	cart := f.seedCart(&paymentType,
		cartItem("Americano", "3.50", 2),
		cartItem("Croissant", "2.25", 1),
	)

	order, err := f.svc.CreateOrderFromCart(context.Background(), f.buyer.UserID)
	if err != nil {
		t.Fatalf("CreateOrderFromCart error: %v", err)
	}

	if order.Status != enums.OrderStatusPending {
		t.Fatalf("new orders start pending, got %s", order.Status)
	}
	if order.Code < 1000 || order.Code > 9999 {
		t.Fatalf("delivery code out of range: %d", order.Code)
	}
	if !order.SubtotalAmount.Equal(decimal.RequireFromString("9.25")) {
		t.Fatalf("unexpected subtotal: %s", order.SubtotalAmount)
	}
	if !order.DeliverySurcharge.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("unexpected delivery surcharge: %s", order.DeliverySurcharge)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("14.25")) {
		t.Fatalf("unexpected total: %s", order.TotalAmount)
	}
	if !order.TotalBecoin.Equal(order.SubtotalBecoin.Add(order.DeliveryBecoin)) {
		t.Fatalf("becoin total must be the sum of converted parts")
	}
	if len(order.Items) != 2 {
		t.Fatalf("items not copied: %d", len(order.Items))
	}

	// The order total sits in escrow, not spent.
	buyer := f.wallets.wallets[f.buyer.ID]
	if !buyer.AvailableBalance.Equal(decimal.RequireFromString("85.75")) {
		t.Fatalf("unexpected available balance: %s", buyer.AvailableBalance)
	}
	if !buyer.LockedBalance.Equal(decimal.RequireFromString("14.25")) {
		t.Fatalf("unexpected locked balance: %s", buyer.LockedBalance)
	}

	if len(f.ledger.entries) != 1 {
		t.Fatalf("expected 1 purchase entry, got %d", len(f.ledger.entries))
	}
	purchase := f.ledger.entries[0]
	if purchase.Type != enums.TransactionTypePurchase || purchase.Status != enums.TransactionStatusPending {
		t.Fatalf("unexpected purchase entry: %+v", purchase)
	}
	if !purchase.Amount.Equal(decimal.RequireFromString("-14.25")) {
		t.Fatalf("purchase amount must be negative: %s", purchase.Amount)
	}
	if !strings.HasPrefix(purchase.Reference, "ORDER-") {
		t.Fatalf("unexpected reference: %s", purchase.Reference)
	}

	if len(f.orders.payments) != 1 {
		t.Fatalf("expected 1 payment row, got %d", len(f.orders.payments))
	}
	for _, payment := range f.orders.payments {
		if payment.OrderID != order.ID || payment.WalletID != f.buyer.ID {
			t.Fatalf("unexpected payment row: %+v", payment)
		}
		if payment.TransactionID == nil {
			t.Fatal("payment must link its ledger entry")
		}
		if !payment.AmountPaid.Equal(order.TotalBecoin) {
			t.Fatalf("unexpected payment amount: %s", payment.AmountPaid)
		}
		if payment.Status != enums.PaymentStatusPending {
			t.Fatalf("payment must start pending: %s", payment.Status)
		}
	}

	if len(f.carts.resetIDs) != 1 || f.carts.resetIDs[0] != cart.ID {
		t.Fatalf("cart not reset after checkout: %+v", f.carts.resetIDs)
	}
}

func TestServiceCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	paymentType := enums.PaymentTypeFull
	f.seedCart(&paymentType)

	_, err := f.svc.CreateOrderFromCart(context.Background(), f.buyer.UserID)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestServiceCheckoutMissingCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrderFromCart(context.Background(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestServiceCheckoutGrouplessCartDefaultsToFull(t *testing.T) {
	f := newFixture(t)
	f.seedCart(nil, cartItem("Americano", "3.50", 1))

	order, err := f.svc.CreateOrderFromCart(context.Background(), f.buyer.UserID)
	if err != nil {
		t.Fatalf("CreateOrderFromCart error: %v", err)
	}
	if order.PaymentType != enums.PaymentTypeFull {
		t.Fatalf("solo carts must settle in full, got %s", order.PaymentType)
	}
}

func TestServiceCheckoutGrouplessCartIgnoresStoredPaymentType(t *testing.T) {
	// A stale split choice left on a cart that has since lost its group
	// must not block checkout.
	f := newFixture(t)
	paymentType := enums.PaymentTypeEqualSplit
	f.seedCart(&paymentType, cartItem("Americano", "3.50", 1))

	order, err := f.svc.CreateOrderFromCart(context.Background(), f.buyer.UserID)
	if err != nil {
		t.Fatalf("CreateOrderFromCart error: %v", err)
	}
	if order.PaymentType != enums.PaymentTypeFull {
		t.Fatalf("solo carts must settle in full, got %s", order.PaymentType)
	}
}

func TestServiceCheckoutGroupCartPaymentTypeMissing(t *testing.T) {
	f := newFixture(t)
	f.seedGroupCart(nil, cartItem("Americano", "3.50", 1))

	_, err := f.svc.CreateOrderFromCart(context.Background(), f.buyer.UserID)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestServiceCheckoutSplitPaymentsUnavailable(t *testing.T) {
	for _, paymentType := range []enums.PaymentType{enums.PaymentTypeEqualSplit, enums.PaymentTypeSplit} {
		pt := paymentType
		f := newFixture(t)
		f.seedGroupCart(&pt, cartItem("Americano", "3.50", 1))

		_, err := f.svc.CreateOrderFromCart(context.Background(), f.buyer.UserID)
		assertCode(t, err, pkgerrors.CodeValidation)
		if !strings.Contains(err.Error(), "not available yet") {
			t.Fatalf("expected split rejection message, got %v", err)
		}
	}
}

func TestServiceCheckoutInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	paymentType := enums.PaymentTypeFull
	// 200.00 worth of items against a 100.00 balance.
	f.seedCart(&paymentType, cartItem("Espresso Machine", "200.00", 1))

	_, err := f.svc.CreateOrderFromCart(context.Background(), f.buyer.UserID)
	assertCode(t, err, pkgerrors.CodeInsufficientFunds)

	buyer := f.wallets.wallets[f.buyer.ID]
	if !buyer.AvailableBalance.Equal(decimal.RequireFromString("100.00")) || !buyer.LockedBalance.IsZero() {
		t.Fatalf("balances touched on failed checkout: %s / %s", buyer.AvailableBalance, buyer.LockedBalance)
	}
	if len(f.carts.resetIDs) != 0 {
		t.Fatalf("cart reset despite failed checkout")
	}
}
