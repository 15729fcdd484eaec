package database

import (
	"log"

	"wms/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		log.Println("WARNING: Failed to auto-migrate models:", err)
	}

	return db, nil
}

// Migrate applies the schema for all billing core models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Role{},
		&model.Permission{},
		&model.Customer{},
		&model.CustomerContract{},
		&model.RateCard{},
		&model.RateCardRule{},
		&model.Order{},
		&model.OrderLine{},
		&model.UnbilledTransaction{},
		&model.Invoice{},
		&model.InvoiceLine{},
		&model.Payment{},
		&model.InvoiceSequence{},
		&model.AuditLog{},
	)
}
