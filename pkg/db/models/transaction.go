package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/becoinapp/becoin-backend/pkg/enums"
)

// Transaction is an append-only ledger entry. Amount is signed from the
// owning wallet's perspective and PostBalance snapshots the wallet's
// available balance immediately after the entry was applied. Only Status
// is ever updated, when an async settlement confirms or fails the entry.
type Transaction struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID        uuid.UUID               `gorm:"column:wallet_id;type:uuid;not null;index"`
	RelatedWalletID *uuid.UUID              `gorm:"column:related_wallet_id;type:uuid"`
	Type            enums.TransactionType   `gorm:"column:type;type:transaction_type;not null"`
	Status          enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	Amount          decimal.Decimal         `gorm:"column:amount;type:numeric(16,2);not null"`
	PostBalance     decimal.Decimal         `gorm:"column:post_balance;type:numeric(16,2);not null"`
	Reference       string                  `gorm:"column:reference;not null;index"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
