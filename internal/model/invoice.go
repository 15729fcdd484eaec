package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus enum constants
const (
	InvoiceStatusOpen    = "OPEN"
	InvoiceStatusPartial = "PARTIAL"
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusFinal   = "FINAL" // purchase-for-client invoices are issued final
)

// PaymentMethod enum constants
const (
	PaymentMethodBankTransfer = "BANK_TRANSFER"
	PaymentMethodCash         = "CASH"
	PaymentMethodCard         = "CARD"
)

// Invoice is one customer's billing document for a period. Subtotal, tax
// and total are written once at generation time; status moves
// OPEN -> PARTIAL -> PAID as payments are recorded.
type Invoice struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNo   string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_no"`
	CustomerID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer    *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	PeriodFrom  time.Time       `gorm:"not null" json:"period_from"`
	PeriodTo    time.Time       `gorm:"not null" json:"period_to"`
	Currency    string          `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"subtotal"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_amount"`
	Status      string          `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"status"`
	OrderID     *uuid.UUID      `gorm:"type:uuid;index" json:"order_id"` // set for purchase-for-client invoices
	Lines       []InvoiceLine   `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"lines"`
	Payments    []Payment       `gorm:"foreignKey:InvoiceID" json:"payments"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// InvoiceLine is one priced line within an invoice, created once and
// immutable thereafter
type InvoiceLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ServiceType string          `gorm:"type:varchar(50);not null" json:"service_type"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UOM         string          `gorm:"type:varchar(20);not null" json:"uom"`
	Rate        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	SortOrder   int             `gorm:"type:int;not null;default:0" json:"sort_order"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Payment records money received against an invoice
type Payment struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Method    string          `gorm:"type:varchar(30);not null" json:"method"`
	Reference string          `gorm:"type:varchar(100)" json:"reference"`
	PaidAt    time.Time       `gorm:"not null" json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// InvoiceSequence backs invoice numbering with an atomic per-month counter,
// one row per calendar month (year_month = "YYYYMM")
type InvoiceSequence struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	YearMonth string    `gorm:"type:varchar(6);uniqueIndex;not null" json:"year_month"`
	LastValue int64     `gorm:"type:bigint;not null;default:0" json:"last_value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *InvoiceLine) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (i *InvoiceSequence) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
