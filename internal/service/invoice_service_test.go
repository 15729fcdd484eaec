package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wms/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedJulyActivity records the canonical three-transaction period used by
// the generation tests: 20.00 storage + 37.50 picking + 18.00 receiving,
// a 75.50 subtotal.
func seedJulyActivity(t *testing.T, env *testEnv, customerID string) {
	t.Helper()
	ctx := context.Background()
	events := []BillableEventRequest{
		{CustomerID: customerID, ServiceType: model.ServiceTypeStorage, Description: "July storage", Quantity: "2", UOM: "m3", OccurredAt: "2024-07-05T08:00:00Z"},
		{CustomerID: customerID, ServiceType: model.ServiceTypePicking, Description: "Picking for order SO-001", Quantity: "25", UOM: "PCS", OccurredAt: "2024-07-10T10:00:00Z"},
		{CustomerID: customerID, ServiceType: model.ServiceTypeReceipt, Description: "Receiving of order PO-002", Quantity: "100", UOM: "kg", OccurredAt: "2024-07-20T16:30:00Z"},
	}
	for _, event := range events {
		_, err := env.transactions.CreateTransaction(ctx, event)
		require.NoError(t, err)
	}
}

func TestGenerateInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedStandardCard(t, env.db, customer.ID)
	seedJulyActivity(t, env, customer.ID.String())

	invoice, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
		CustomerID: customer.ID.String(),
		PeriodFrom: "2024-07-01",
		PeriodTo:   "2024-07-31",
		TaxRate:    "10",
	})
	require.NoError(t, err)

	assert.Equal(t, "75.50", invoice.Subtotal)
	assert.Equal(t, "7.55", invoice.TaxAmount)
	assert.Equal(t, "83.05", invoice.TotalAmount)
	assert.Equal(t, model.InvoiceStatusOpen, invoice.Status)
	assert.Equal(t, "USD", invoice.Currency)
	assert.Equal(t, customer.Name, invoice.CustomerName)
	require.Len(t, invoice.Lines, 3)

	// Lines keep ledger order and carry the composed description
	assert.Equal(t, model.ServiceTypeStorage, invoice.Lines[0].ServiceType)
	assert.Equal(t, "STORAGE - July storage", invoice.Lines[0].Description)
	assert.Equal(t, "20.00", invoice.Lines[0].Amount)
	assert.Equal(t, model.ServiceTypePicking, invoice.Lines[1].ServiceType)
	assert.Equal(t, "37.50", invoice.Lines[1].Amount)
	assert.Equal(t, model.ServiceTypeReceipt, invoice.Lines[2].ServiceType)
	assert.Equal(t, "18.00", invoice.Lines[2].Amount)

	// Every swept transaction is claimed by the invoice
	var txns []model.UnbilledTransaction
	require.NoError(t, env.db.Find(&txns, "customer_id = ?", customer.ID).Error)
	require.Len(t, txns, 3)
	for _, txn := range txns {
		assert.True(t, txn.Billed)
		require.NotNil(t, txn.InvoiceID)
		assert.Equal(t, invoice.ID, txn.InvoiceID.String())
	}
}

func TestGenerateInvoiceNoActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedStandardCard(t, env.db, customer.ID)
	seedJulyActivity(t, env, customer.ID.String())

	req := GenerateInvoiceRequest{
		CustomerID: customer.ID.String(),
		PeriodFrom: "2024-07-01",
		PeriodTo:   "2024-07-31",
	}
	_, err := env.invoices.GenerateInvoice(ctx, req)
	require.NoError(t, err)

	// Second run over the same period finds nothing left to bill
	_, err = env.invoices.GenerateInvoice(ctx, req)
	assert.ErrorIs(t, err, ErrNoUnbilledActivity)

	// Period without any activity at all behaves the same
	_, err = env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
		CustomerID: customer.ID.String(),
		PeriodFrom: "2024-01-01",
		PeriodTo:   "2024-01-31",
	})
	assert.ErrorIs(t, err, ErrNoUnbilledActivity)
}

func TestGenerateInvoiceValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	t.Run("reversed period", func(t *testing.T) {
		_, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
			CustomerID: customer.ID.String(),
			PeriodFrom: "2024-07-31",
			PeriodTo:   "2024-07-01",
		})
		assert.ErrorContains(t, err, "period_to must not precede period_from")
	})

	t.Run("negative tax rate", func(t *testing.T) {
		_, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
			CustomerID: customer.ID.String(),
			PeriodFrom: "2024-07-01",
			PeriodTo:   "2024-07-31",
			TaxRate:    "-5",
		})
		assert.ErrorContains(t, err, "tax_rate must not be negative")
	})

	t.Run("bad date format", func(t *testing.T) {
		_, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
			CustomerID: customer.ID.String(),
			PeriodFrom: "01/07/2024",
			PeriodTo:   "2024-07-31",
		})
		assert.ErrorContains(t, err, "period_from")
	})
}

func TestInvoiceNumberingSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	month := time.Now().Format("200601")
	for i, code := range []string{"AAA", "BBB", "CCC"} {
		customer := seedCustomer(t, env.db, code)
		seedStandardCard(t, env.db, customer.ID)
		seedJulyActivity(t, env, customer.ID.String())

		invoice, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
			CustomerID: customer.ID.String(),
			PeriodFrom: "2024-07-01",
			PeriodTo:   "2024-07-31",
		})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("INV-%s-%04d", month, i+1), invoice.InvoiceNo)
	}
}

func TestGenerateInvoiceRepricesUnpriced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "LATE")

	// Activity recorded before any card exists degrades to zero
	resp, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  customer.ID.String(),
		ServiceType: model.ServiceTypePicking,
		Quantity:    "10",
		UOM:         "PCS",
		OccurredAt:  "2024-07-10T10:00:00Z",
	})
	require.NoError(t, err)
	require.Equal(t, model.PricingStatusUnpriced, resp.PricingStatus)

	// Card arrives after the fact
	seedStandardCard(t, env.db, customer.ID)

	invoice, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
		CustomerID: customer.ID.String(),
		PeriodFrom: "2024-07-01",
		PeriodTo:   "2024-07-31",
	})
	require.NoError(t, err)

	assert.Equal(t, "15.00", invoice.Subtotal)
	require.Len(t, invoice.Lines, 1)
	assert.Equal(t, "1.5000", invoice.Lines[0].Rate)

	var stored model.UnbilledTransaction
	require.NoError(t, env.db.First(&stored, "id = ?", resp.ID).Error)
	assert.Equal(t, model.PricingStatusPriced, stored.PricingStatus)
	assert.Empty(t, stored.UnpricedReason)
	assert.True(t, stored.Amount.Equal(d("15")))
}

func TestGenerateInvoiceKeepsUnpricedAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ZERO")

	// No card now, no card at generation time: line goes out at zero
	_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  customer.ID.String(),
		ServiceType: model.ServiceTypePicking,
		Quantity:    "10",
		UOM:         "PCS",
		OccurredAt:  "2024-07-10T10:00:00Z",
	})
	require.NoError(t, err)

	invoice, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
		CustomerID: customer.ID.String(),
		PeriodFrom: "2024-07-01",
		PeriodTo:   "2024-07-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.00", invoice.Subtotal)
	require.Len(t, invoice.Lines, 1)
	assert.Equal(t, "0.00", invoice.Lines[0].Amount)
	// Description keeps the fixed form even without event text
	assert.Equal(t, "PICKING - ", invoice.Lines[0].Description)
}

func seedDeliveredOrder(t *testing.T, env *testEnv, customer *model.Customer, ownership string) *model.Order {
	t.Helper()
	deliveredAt := time.Date(2024, 7, 25, 14, 0, 0, 0, time.UTC)
	order := &model.Order{
		OrderNo:       "PFC-" + customer.Code,
		CustomerID:    customer.ID,
		Type:          model.OrderTypeOutbound,
		OwnershipType: ownership,
		Status:        model.OrderStatusDelivered,
		DeliveredAt:   &deliveredAt,
		Lines: []model.OrderLine{
			{SKU: "SKU-1", Name: "Office chair", Quantity: d("10"), UnitPrice: d("45"), WeightKg: d("8"), VolumeM3: d("0.3")},
			{SKU: "SKU-2", Name: "Packing filler", Quantity: d("5"), UnitPrice: d("0"), WeightKg: d("1"), VolumeM3: d("0.1")},
		},
	}
	require.NoError(t, env.db.Create(order).Error)
	return order
}

func TestGeneratePurchaseForClientInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "PFC")
	seedCard(t, env.db, customer.ID, []model.RateCardRule{
		{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), Price: d("10"), IsActive: true, SortOrder: 0},
		{ServiceType: model.ServiceTypePicking, UOM: "PCS", TierFrom: d("0"), Price: d("1"), IsActive: true, SortOrder: 1},
		{ServiceType: model.ServiceTypePacking, UOM: "kg", TierFrom: d("0"), Price: d("0.5"), IsActive: true, SortOrder: 2},
		{ServiceType: model.ServiceTypeDelivery, UOM: "kg", TierFrom: d("0"), Price: d("1"), IsActive: true, SortOrder: 3},
	})
	order := seedDeliveredOrder(t, env, customer, model.OwnershipPurchaseForClient)

	invoice, err := env.invoices.GeneratePurchaseForClientInvoice(ctx, order.ID.String())
	require.NoError(t, err)

	// One goods line (zero-priced line skipped) plus four handling charges
	// per order line: SKU-1 storage 3 m3 -> 30, picking 10 PCS -> 10,
	// packing 80 kg -> 40, delivery 80 kg -> 80; SKU-2 storage 0.5 m3 -> 5,
	// picking 5 PCS -> 5, packing 5 kg -> 2.50, delivery 5 kg -> 5
	require.Len(t, invoice.Lines, 9)
	assert.Equal(t, model.ServiceTypeSale, invoice.Lines[0].ServiceType)
	assert.Equal(t, "SKU-1 - Office chair", invoice.Lines[0].Description)
	assert.Equal(t, "450.00", invoice.Lines[0].Amount)
	assert.Equal(t, model.ServiceTypeStorage, invoice.Lines[1].ServiceType)
	assert.Equal(t, "30.00", invoice.Lines[1].Amount)
	assert.Equal(t, model.ServiceTypeDelivery, invoice.Lines[4].ServiceType)
	assert.Equal(t, "80.00", invoice.Lines[4].Amount)
	assert.Equal(t, model.ServiceTypeStorage, invoice.Lines[5].ServiceType)
	assert.Equal(t, "5.00", invoice.Lines[5].Amount)
	assert.Equal(t, model.ServiceTypePacking, invoice.Lines[7].ServiceType)
	assert.Equal(t, "2.50", invoice.Lines[7].Amount)

	assert.Equal(t, "627.50", invoice.Subtotal)
	assert.Equal(t, "94.13", invoice.TaxAmount) // fixed 15% goods tax
	assert.Equal(t, "721.63", invoice.TotalAmount)
	assert.Equal(t, model.InvoiceStatusFinal, invoice.Status)
	require.NotNil(t, invoice.OrderID)
	assert.Equal(t, order.ID.String(), *invoice.OrderID)
}

func TestPurchaseForClientMinFeePerOrderLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "PFC")
	seedCard(t, env.db, customer.ID, []model.RateCardRule{
		{ServiceType: model.ServiceTypePicking, UOM: "PCS", TierFrom: d("0"), Price: d("1"), MinFee: dp("50"), IsActive: true, SortOrder: 0},
	})
	order := seedDeliveredOrder(t, env, customer, model.OwnershipPurchaseForClient)

	invoice, err := env.invoices.GeneratePurchaseForClientInvoice(ctx, order.ID.String())
	require.NoError(t, err)

	// Each order line hits the 50 picking floor on its own: 450 goods +
	// 50 + 50, not one aggregated max(15, 50) charge
	require.Len(t, invoice.Lines, 3)
	assert.Equal(t, model.ServiceTypePicking, invoice.Lines[1].ServiceType)
	assert.Equal(t, "50.00", invoice.Lines[1].Amount)
	assert.Equal(t, model.ServiceTypePicking, invoice.Lines[2].ServiceType)
	assert.Equal(t, "50.00", invoice.Lines[2].Amount)
	assert.Equal(t, "550.00", invoice.Subtotal)
	assert.Equal(t, "632.50", invoice.TotalAmount)
}

func TestGeneratePurchaseForClientInvoiceGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "PFC")

	t.Run("standard order rejected", func(t *testing.T) {
		seedStandardCard(t, env.db, customer.ID)
		order := seedDeliveredOrder(t, env, customer, model.OwnershipStandard)
		_, err := env.invoices.GeneratePurchaseForClientInvoice(ctx, order.ID.String())
		assert.ErrorContains(t, err, "not a purchase-for-client order")
	})

	t.Run("undelivered order rejected", func(t *testing.T) {
		order := &model.Order{
			OrderNo:       "PFC-OPEN",
			CustomerID:    customer.ID,
			Type:          model.OrderTypeOutbound,
			OwnershipType: model.OwnershipPurchaseForClient,
			Status:        model.OrderStatusPacked,
			Lines:         []model.OrderLine{{SKU: "SKU-1", Quantity: d("1"), UnitPrice: d("10")}},
		}
		require.NoError(t, env.db.Create(order).Error)
		_, err := env.invoices.GeneratePurchaseForClientInvoice(ctx, order.ID.String())
		assert.ErrorContains(t, err, "not delivered")
	})

	t.Run("no active card rejected", func(t *testing.T) {
		bare := seedCustomer(t, env.db, "BARE")
		order := seedDeliveredOrder(t, env, bare, model.OwnershipPurchaseForClient)
		_, err := env.invoices.GeneratePurchaseForClientInvoice(ctx, order.ID.String())
		assert.ErrorContains(t, err, "no active rate card")
	})
}

func TestRecordPaymentStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedStandardCard(t, env.db, customer.ID)
	seedJulyActivity(t, env, customer.ID.String())

	invoice, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
		CustomerID: customer.ID.String(),
		PeriodFrom: "2024-07-01",
		PeriodTo:   "2024-07-31",
	})
	require.NoError(t, err)
	require.Equal(t, "75.50", invoice.TotalAmount)

	partial, err := env.invoices.RecordPayment(ctx, invoice.ID, RecordPaymentRequest{
		Amount: "30",
		Method: model.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPartial, partial.Status)
	require.Len(t, partial.Payments, 1)

	paid, err := env.invoices.RecordPayment(ctx, invoice.ID, RecordPaymentRequest{
		Amount:    "45.50",
		Method:    model.PaymentMethodCash,
		Reference: "RCPT-9",
	})
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusPaid, paid.Status)
	require.Len(t, paid.Payments, 2)

	_, err = env.invoices.RecordPayment(ctx, invoice.ID, RecordPaymentRequest{
		Amount: "1",
		Method: model.PaymentMethodCash,
	})
	assert.ErrorContains(t, err, "already paid")
}

func TestRecordPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedStandardCard(t, env.db, customer.ID)
	seedJulyActivity(t, env, customer.ID.String())

	invoice, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
		CustomerID: customer.ID.String(),
		PeriodFrom: "2024-07-01",
		PeriodTo:   "2024-07-31",
	})
	require.NoError(t, err)

	_, err = env.invoices.RecordPayment(ctx, invoice.ID, RecordPaymentRequest{
		Amount: "0",
		Method: model.PaymentMethodCash,
	})
	assert.ErrorContains(t, err, "amount must be positive")

	_, err = env.invoices.RecordPayment(ctx, invoice.ID, RecordPaymentRequest{
		Amount: "10",
		Method: model.PaymentMethodCash,
		PaidAt: "yesterday",
	})
	assert.ErrorContains(t, err, "paid_at")
}

func TestListInvoices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := seedCustomer(t, env.db, "ONE")
	second := seedCustomer(t, env.db, "TWO")
	for _, customer := range []*model.Customer{first, second} {
		seedStandardCard(t, env.db, customer.ID)
		seedJulyActivity(t, env, customer.ID.String())
		_, err := env.invoices.GenerateInvoice(ctx, GenerateInvoiceRequest{
			CustomerID: customer.ID.String(),
			PeriodFrom: "2024-07-01",
			PeriodTo:   "2024-07-31",
		})
		require.NoError(t, err)
	}

	all, total, err := env.invoices.ListInvoices(ctx, InvoiceListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	scoped, total, err := env.invoices.ListInvoices(ctx, InvoiceListRequest{CustomerID: first.ID.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, scoped, 1)
	assert.Equal(t, first.ID.String(), scoped[0].CustomerID)
}
