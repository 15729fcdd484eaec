package repository

import (
	"context"
	"time"

	"wms/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnbilledCustomerSummary is one customer's slice of the pre-run billing
// summary
type UnbilledCustomerSummary struct {
	CustomerID   uuid.UUID       `gorm:"column:customer_id"`
	CustomerCode string          `gorm:"column:customer_code"`
	CustomerName string          `gorm:"column:customer_name"`
	TxnCount     int64           `gorm:"column:txn_count"`
	TotalAmount  decimal.Decimal `gorm:"column:total_amount"`
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.UnbilledTransaction) error
	Update(ctx context.Context, txn *model.UnbilledTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.UnbilledTransaction, error)
	List(ctx context.Context, customerID *uuid.UUID, billed *bool, page, limit int) ([]model.UnbilledTransaction, int64, error)
	ListUnbilled(ctx context.Context, customerID uuid.UUID, from, to time.Time) ([]model.UnbilledTransaction, error)
	CountUnbilled(ctx context.Context, customerID uuid.UUID, from, to time.Time) (int64, error)
	MarkBilled(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID) (int64, error)
	SummarizeUnbilled(ctx context.Context, from, to time.Time) ([]UnbilledCustomerSummary, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, txn *model.UnbilledTransaction) error {
	return GetDB(ctx, r.db).Create(txn).Error
}

func (r *transactionRepository) Update(ctx context.Context, txn *model.UnbilledTransaction) error {
	return GetDB(ctx, r.db).Save(txn).Error
}

func (r *transactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.UnbilledTransaction, error) {
	var txn model.UnbilledTransaction
	if err := GetDB(ctx, r.db).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) List(ctx context.Context, customerID *uuid.UUID, billed *bool, page, limit int) ([]model.UnbilledTransaction, int64, error) {
	var txns []model.UnbilledTransaction
	var total int64

	db := GetDB(ctx, r.db)
	build := func() *gorm.DB {
		query := db.Model(&model.UnbilledTransaction{})
		if customerID != nil {
			query = query.Where("customer_id = ?", *customerID)
		}
		if billed != nil {
			query = query.Where("billed = ?", *billed)
		}
		return query
	}

	if err := build().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := build().Order("occurred_at DESC").Offset(offset).Limit(limit).Find(&txns).Error; err != nil {
		return nil, 0, err
	}

	return txns, total, nil
}

// ListUnbilled returns the customer's not-yet-billed transactions within
// the period, oldest first so invoice lines keep ledger order.
func (r *transactionRepository) ListUnbilled(ctx context.Context, customerID uuid.UUID, from, to time.Time) ([]model.UnbilledTransaction, error) {
	var txns []model.UnbilledTransaction
	if err := GetDB(ctx, r.db).
		Where("customer_id = ? AND billed = ? AND occurred_at >= ? AND occurred_at <= ?", customerID, false, from, to).
		Order("occurred_at ASC").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) CountUnbilled(ctx context.Context, customerID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.UnbilledTransaction{}).
		Where("customer_id = ? AND billed = ? AND occurred_at >= ? AND occurred_at <= ?", customerID, false, from, to).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkBilled claims the transactions for an invoice with a conditional
// bulk update. The billed=false guard plus the returned affected-row
// count let the caller detect a concurrent claim and roll back.
func (r *transactionRepository) MarkBilled(ctx context.Context, ids []uuid.UUID, invoiceID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := GetDB(ctx, r.db).Model(&model.UnbilledTransaction{}).
		Where("billed = ? AND id IN ?", false, ids).
		Updates(map[string]interface{}{"billed": true, "invoice_id": invoiceID})
	return res.RowsAffected, res.Error
}

// SummarizeUnbilled groups not-yet-billed activity in the period by
// customer, regardless of customer status
func (r *transactionRepository) SummarizeUnbilled(ctx context.Context, from, to time.Time) ([]UnbilledCustomerSummary, error) {
	var rows []UnbilledCustomerSummary
	err := GetDB(ctx, r.db).Raw(`
		SELECT t.customer_id AS customer_id,
		       c.code AS customer_code,
		       c.name AS customer_name,
		       COUNT(*) AS txn_count,
		       COALESCE(SUM(t.amount), 0) AS total_amount
		FROM unbilled_transactions t
		JOIN customers c ON c.id = t.customer_id
		WHERE t.billed = ? AND t.occurred_at >= ? AND t.occurred_at <= ?
		GROUP BY t.customer_id, c.code, c.name
		ORDER BY c.code
	`, false, from, to).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
