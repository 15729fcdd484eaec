package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateCustomer = "CREATE_CUSTOMER"
	ActionUpdateCustomer = "UPDATE_CUSTOMER"
	ActionDeleteCustomer = "DELETE_CUSTOMER"

	ActionCreateRateCard   = "CREATE_RATE_CARD"
	ActionUpdateRateCard   = "UPDATE_RATE_CARD"
	ActionActivateRateCard = "ACTIVATE_RATE_CARD"
	ActionDeleteRateCard   = "DELETE_RATE_CARD"

	ActionCreateOrder          = "CREATE_ORDER"
	ActionUpdateOrderStatus    = "UPDATE_ORDER_STATUS"
	ActionRecordTransaction    = "RECORD_TRANSACTION"
	ActionGenerateInvoice      = "GENERATE_INVOICE"
	ActionGenerateSalesInvoice = "GENERATE_SALES_INVOICE"
	ActionRecordPayment        = "RECORD_PAYMENT"
	ActionRunMonthlyBilling    = "RUN_MONTHLY_BILLING"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable gracefully if automated job
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
