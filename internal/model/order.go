package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderType enum constants
const (
	OrderTypeInbound  = "INBOUND"
	OrderTypeOutbound = "OUTBOUND"
)

// OrderStatus constants
const (
	OrderStatusDraft     = "DRAFT"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusPicking   = "PICKING"
	OrderStatusPacked    = "PACKED"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

// OwnershipType enum constants
const (
	OwnershipStandard          = "STANDARD"
	OwnershipPurchaseForClient = "PURCHASE_FOR_CLIENT" // operator bought goods on the client's behalf
)

// Order represents an inbound receipt or outbound shipment order against
// a customer's stock
type Order struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNo       string      `gorm:"type:varchar(100);uniqueIndex;not null" json:"order_no"`
	CustomerID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer      *Customer   `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Type          string      `gorm:"type:varchar(20);not null" json:"type"`                              // INBOUND, OUTBOUND
	OwnershipType string      `gorm:"type:varchar(30);not null;default:'STANDARD'" json:"ownership_type"` // STANDARD, PURCHASE_FOR_CLIENT
	Status        string      `gorm:"type:varchar(30);not null;default:'DRAFT';index" json:"status"`
	WarehouseID   *uuid.UUID  `gorm:"type:uuid;index" json:"warehouse_id"`
	Note          string      `gorm:"type:text" json:"note"`
	Lines         []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"lines"`
	DeliveredAt   *time.Time  `json:"delivered_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderLine is a line item within an Order. Weight and volume feed the
// handling and storage charges when the line is billed.
type OrderLine struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	ItemID    *uuid.UUID      `gorm:"type:uuid;index" json:"item_id"`
	LotID     *uuid.UUID      `gorm:"type:uuid" json:"lot_id"`
	SKU       string          `gorm:"type:varchar(100);not null" json:"sku"`
	Name      string          `gorm:"type:varchar(255)" json:"name"`
	Quantity  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"unit_price"` // goods price, used on purchase-for-client invoices
	WeightKg  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"weight_kg"`
	VolumeM3  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"volume_m3"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (o *OrderLine) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
