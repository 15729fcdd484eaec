package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ServiceType enum constants. Free-text in the schema, these are the
// values the warehouse modules emit
const (
	ServiceTypeStorage  = "STORAGE"
	ServiceTypePicking  = "PICKING"
	ServiceTypePacking  = "PACKING"
	ServiceTypeReceipt  = "RECEIPT"
	ServiceTypeDelivery = "DELIVERY"
	ServiceTypeSale     = "SALE"
)

// RateCard is a named, currency-denominated pricing policy for one customer.
// At most one card should be active per customer at a time.
type RateCard struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID uuid.UUID      `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer   *Customer      `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Name       string         `gorm:"type:varchar(255);not null" json:"name"`
	Currency   string         `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	ValidFrom  *time.Time     `gorm:"type:date" json:"valid_from"` // nullable = open-ended
	ValidTo    *time.Time     `gorm:"type:date" json:"valid_to"`
	IsActive   bool           `gorm:"default:true;index" json:"is_active"`
	Rules      []RateCardRule `gorm:"foreignKey:RateCardID;constraint:OnDelete:CASCADE" json:"rules"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RateCardRule is one pricing tier within a rate card. Rules are resolved
// in stored order (sort_order, then creation), first match wins.
type RateCardRule struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	RateCardID  uuid.UUID         `gorm:"type:uuid;not null;index" json:"rate_card_id"`
	ServiceType string            `gorm:"type:varchar(50);not null;index" json:"service_type"`    // STORAGE, PICKING, DELIVERY...
	UOM         string            `gorm:"type:varchar(20);not null" json:"uom"`                   // kg, m3, PCS, km...
	TierFrom    decimal.Decimal   `gorm:"type:decimal(18,4);not null;default:0" json:"tier_from"` // inclusive
	TierTo      *decimal.Decimal  `gorm:"type:decimal(18,4)" json:"tier_to"`                      // inclusive, nullable = unbounded
	Price       decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"price"`               // per unit
	MinFee      *decimal.Decimal  `gorm:"type:decimal(18,4)" json:"min_fee"`                      // optional floor
	IsActive    bool              `gorm:"default:true" json:"is_active"`
	SortOrder   int               `gorm:"type:int;not null;default:0" json:"sort_order"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (r *RateCard) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *RateCardRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
