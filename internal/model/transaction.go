package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PricingStatus enum constants. Distinguishes "legitimately free" from
// "pricing failed" on a logged transaction
const (
	PricingStatusPriced   = "PRICED"
	PricingStatusUnpriced = "UNPRICED"
)

// UnbilledTransaction is one billable warehouse event in the append-only
// ledger. Mutated exactly once, billed=false -> billed=true with the
// invoice reference set; never deleted.
type UnbilledTransaction struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID     uuid.UUID         `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer       *Customer         `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	ServiceType    string            `gorm:"type:varchar(50);not null;index" json:"service_type"`
	Description    string            `gorm:"type:text" json:"description"`
	Quantity       decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UOM            string            `gorm:"type:varchar(20);not null" json:"uom"`
	Rate           decimal.Decimal   `gorm:"type:decimal(18,4);not null;default:0" json:"rate"`
	Amount         decimal.Decimal   `gorm:"type:decimal(18,4);not null;default:0" json:"amount"`
	PricingStatus  string            `gorm:"type:varchar(20);not null;default:'PRICED'" json:"pricing_status"` // PRICED, UNPRICED
	UnpricedReason string            `gorm:"type:varchar(255)" json:"unpriced_reason,omitempty"`
	Billed         bool              `gorm:"not null;default:false;index" json:"billed"`
	InvoiceID      *uuid.UUID        `gorm:"type:uuid;index" json:"invoice_id"`
	OrderID        *uuid.UUID        `gorm:"type:uuid;index" json:"order_id"`
	OrderLineID    *uuid.UUID        `gorm:"type:uuid" json:"order_line_id"`
	WarehouseID    *uuid.UUID        `gorm:"type:uuid" json:"warehouse_id"`
	BinID          *uuid.UUID        `gorm:"type:uuid" json:"bin_id"`
	ItemID         *uuid.UUID        `gorm:"type:uuid" json:"item_id"`
	LotID          *uuid.UUID        `gorm:"type:uuid" json:"lot_id"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"` // operation-specific context (storage_days, distance_km...)
	OccurredAt     time.Time         `gorm:"not null;index" json:"occurred_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (u *UnbilledTransaction) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
