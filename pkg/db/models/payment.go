package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/becoinapp/becoin-backend/pkg/enums"
)

// Payment records one payer's contribution to an order. With full payment
// there is exactly one row per order; split payments would add one per
// participant. TransactionID links the ledger entry that debited the payer.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	WalletID      uuid.UUID           `gorm:"column:wallet_id;type:uuid;not null;index"`
	TransactionID *uuid.UUID          `gorm:"column:transaction_id;type:uuid"`
	AmountPaid    decimal.Decimal     `gorm:"column:amount_paid;type:numeric(16,2);not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	FailureReason *string             `gorm:"column:failure_reason"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
