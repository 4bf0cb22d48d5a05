package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/becoinapp/becoin-backend/pkg/enums"
)

// Cart is the transient working set an order is materialized from. After a
// successful checkout the cart is reset: items removed, group, address,
// payment type and totals cleared.
type Cart struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID          `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	GroupID           *uuid.UUID         `gorm:"column:group_id;type:uuid"`
	DeliveryAddressID *uuid.UUID         `gorm:"column:delivery_address_id;type:uuid"`
	PaymentType       *enums.PaymentType `gorm:"column:payment_type;type:payment_type"`
	SubtotalAmount    decimal.Decimal    `gorm:"column:subtotal_amount;type:numeric(12,2);not null;default:0"`
	Items             []CartItem         `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
