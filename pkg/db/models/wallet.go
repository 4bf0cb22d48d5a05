package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's spendable and escrowed becoin balances.
// AvailableBalance and LockedBalance are never allowed to go negative;
// every mutation happens under a row lock inside a transaction.
type Wallet struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	IsPlatform       bool            `gorm:"column:is_platform;not null;default:false"`
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:numeric(16,2);not null;default:0"`
	LockedBalance    decimal.Decimal `gorm:"column:locked_balance;type:numeric(16,2);not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
