package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/becoinapp/becoin-backend/pkg/enums"
)

// Order is the materialized form of a cart. Code is the 4-digit
// confirmation the buyer presents at delivery, unique among open orders.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID           uuid.UUID         `gorm:"column:buyer_id;type:uuid;not null;index"`
	GroupID           *uuid.UUID        `gorm:"column:group_id;type:uuid"`
	DeliveryAddressID *uuid.UUID        `gorm:"column:delivery_address_id;type:uuid"`
	Code              int               `gorm:"column:code;not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentType       enums.PaymentType `gorm:"column:payment_type;type:payment_type;not null;default:'full'"`
	SubtotalAmount    decimal.Decimal   `gorm:"column:subtotal_amount;type:numeric(12,2);not null"`
	DeliverySurcharge decimal.Decimal   `gorm:"column:delivery_surcharge;type:numeric(12,2);not null;default:0"`
	TotalAmount       decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	SubtotalBecoin    decimal.Decimal   `gorm:"column:subtotal_becoin;type:numeric(16,2);not null"`
	DeliveryBecoin    decimal.Decimal   `gorm:"column:delivery_becoin;type:numeric(16,2);not null;default:0"`
	TotalBecoin       decimal.Decimal   `gorm:"column:total_becoin;type:numeric(16,2);not null"`
	Observation       *string           `gorm:"column:observation"`
	DeliveredAt       *time.Time        `gorm:"column:delivered_at"`
	CancelledAt       *time.Time        `gorm:"column:cancelled_at"`
	Items             []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments          []Payment         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
