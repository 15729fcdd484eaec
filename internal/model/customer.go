package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerStatus enum constants
const (
	CustomerStatusActive   = "active"
	CustomerStatusInactive = "inactive"
)

// Customer represents a 3PL tenant whose goods we store and whose
// warehouse activity we bill
type Customer struct {
	ID             uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Code           string             `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name           string             `gorm:"type:varchar(255);not null" json:"name"`
	Status         string             `gorm:"type:varchar(20);not null;default:'active';index" json:"status"` // active, inactive
	TaxCode        string             `gorm:"type:varchar(50)" json:"tax_code"`
	ContactPerson  string             `gorm:"type:varchar(255)" json:"contact_person"`
	Phone          string             `gorm:"type:varchar(50)" json:"phone"`
	Email          string             `gorm:"type:varchar(255)" json:"email"`
	BillingAddress string             `gorm:"type:text" json:"billing_address"`
	Contracts      []CustomerContract `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"contracts,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	DeletedAt      gorm.DeletedAt     `gorm:"index" json:"-"`
}

// CustomerContract is the commercial agreement backing a customer's rate cards
type CustomerContract struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index" json:"customer_id"`
	ContractNo string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"contract_no"`
	StartDate  time.Time  `gorm:"type:date;not null" json:"start_date"`
	EndDate    *time.Time `gorm:"type:date" json:"end_date"` // nullable = open-ended
	Note       string     `gorm:"type:text" json:"note"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *CustomerContract) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
