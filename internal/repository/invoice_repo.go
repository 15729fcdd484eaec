package repository

import (
	"context"
	"time"

	"wms/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceListFilter struct {
	CustomerID *uuid.UUID
	Status     string
	InvoiceNo  string // partial match
	Page       int
	Limit      int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	Update(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error)
	CreateLines(ctx context.Context, lines []model.InvoiceLine) error
	CreatePayment(ctx context.Context, payment *model.Payment) error
	NextSequence(ctx context.Context, yearMonth string) (int64, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Save(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByIDWithDetails(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).
		Preload("Customer").
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, created_at ASC")
		}).
		Preload("Payments").
		First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceListFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	db := GetDB(ctx, r.db)
	build := func() *gorm.DB {
		query := db.Model(&model.Invoice{})
		if filter.CustomerID != nil {
			query = query.Where("customer_id = ?", *filter.CustomerID)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.InvoiceNo != "" {
			query = query.Where("invoice_no LIKE ?", "%"+filter.InvoiceNo+"%")
		}
		return query
	}

	if err := build().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := build().Preload("Customer").Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}

	return invoices, total, nil
}

func (r *invoiceRepository) CreateLines(ctx context.Context, lines []model.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&lines).Error
}

func (r *invoiceRepository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

// NextSequence increments and returns the month's invoice counter via an
// upsert on the unique year_month row. Called inside the generation
// transaction: the updated row stays locked until commit, so two
// concurrent generations cannot read the same value.
func (r *invoiceRepository) NextSequence(ctx context.Context, yearMonth string) (int64, error) {
	db := GetDB(ctx, r.db)

	seq := model.InvoiceSequence{YearMonth: yearMonth, LastValue: 1}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "year_month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_value": gorm.Expr("invoice_sequences.last_value + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(&seq).Error; err != nil {
		return 0, err
	}

	var current model.InvoiceSequence
	if err := db.Where("year_month = ?", yearMonth).First(&current).Error; err != nil {
		return 0, err
	}
	return current.LastValue, nil
}
