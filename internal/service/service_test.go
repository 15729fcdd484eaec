package service

import (
	"fmt"
	"strings"
	"testing"

	"wms/internal/database"
	"wms/internal/model"
	"wms/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// testEnv wires the billing services against an in-memory database the
// same way cmd/api does against postgres
type testEnv struct {
	db           *gorm.DB
	customers    CustomerService
	rateCards    RateCardService
	transactions TransactionService
	invoices     InvoiceService
	billing      BillingService
	orders       OrderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	txManager := repository.NewTransactionManager(db)
	customerRepo := repository.NewCustomerRepository(db)
	rateCardRepo := repository.NewRateCardRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	invoiceService := NewInvoiceService(invoiceRepo, txnRepo, customerRepo, rateCardRepo, orderRepo, auditRepo, txManager, nil)
	return &testEnv{
		db:           db,
		customers:    NewCustomerService(customerRepo, auditRepo),
		rateCards:    NewRateCardService(rateCardRepo, customerRepo, auditRepo, txManager),
		transactions: NewTransactionService(txnRepo, customerRepo, rateCardRepo, auditRepo, nil),
		invoices:     invoiceService,
		billing:      NewBillingService(invoiceService, customerRepo, txnRepo, auditRepo, nil),
		orders:       NewOrderService(orderRepo, customerRepo, invoiceService, auditRepo),
	}
}

func seedCustomer(t *testing.T, db *gorm.DB, code string) *model.Customer {
	t.Helper()
	customer := &model.Customer{
		Code:   code,
		Name:   "Customer " + code,
		Status: "active",
	}
	require.NoError(t, db.Create(customer).Error)
	return customer
}

// seedStandardCard installs an active card covering the service types the
// tests exercise: storage at 5/m3 with a 20 floor, picking at 1.5/PCS,
// receiving at 0.18/kg.
func seedStandardCard(t *testing.T, db *gorm.DB, customerID uuid.UUID) *model.RateCard {
	t.Helper()
	return seedCard(t, db, customerID, []model.RateCardRule{
		{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), Price: d("5"), MinFee: dp("20"), IsActive: true, SortOrder: 0},
		{ServiceType: model.ServiceTypePicking, UOM: "PCS", TierFrom: d("0"), Price: d("1.5"), IsActive: true, SortOrder: 1},
		{ServiceType: model.ServiceTypeReceipt, UOM: "kg", TierFrom: d("0"), Price: d("0.18"), IsActive: true, SortOrder: 2},
	})
}

func seedCard(t *testing.T, db *gorm.DB, customerID uuid.UUID, rules []model.RateCardRule) *model.RateCard {
	t.Helper()
	card := &model.RateCard{
		CustomerID: customerID,
		Name:       "Test card",
		Currency:   "USD",
		IsActive:   true,
		Rules:      rules,
	}
	require.NoError(t, db.Create(card).Error)
	return card
}
