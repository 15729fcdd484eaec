package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wms/internal/model"
	"wms/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMonthlyBilling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, code := range []string{"AAA", "BBB"} {
		customer := seedCustomer(t, env.db, code)
		seedStandardCard(t, env.db, customer.ID)
		seedJulyActivity(t, env, customer.ID.String())
	}
	// Active customer with no July activity: zero-amount result, no invoice
	idle := seedCustomer(t, env.db, "IDLE")
	seedStandardCard(t, env.db, idle.ID)

	// Inactive customers stay out of the sweep even with activity on the books
	dormant := seedCustomer(t, env.db, "ZZZ")
	seedStandardCard(t, env.db, dormant.ID)
	seedJulyActivity(t, env, dormant.ID.String())
	require.NoError(t, env.db.Model(dormant).Update("status", "inactive").Error)

	result, err := env.billing.RunMonthlyBilling(ctx, RunBillingRequest{Period: "2024-07", TaxRate: "10"})
	require.NoError(t, err)

	assert.Equal(t, "2024-07", result.Period)
	assert.Equal(t, 3, result.CustomersProcessed)
	assert.Equal(t, 2, result.InvoicesCreated)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Failures)
	assert.Equal(t, "166.10", result.TotalAmount) // 83.05 per customer

	require.Len(t, result.Results, 3)
	for i, code := range []string{"AAA", "BBB"} {
		entry := result.Results[i]
		assert.Equal(t, code, entry.CustomerCode)
		assert.Equal(t, BatchStatusInvoiced, entry.Status)
		assert.Equal(t, "83.05", entry.TotalAmount)
		assert.Equal(t, 3, entry.TxnCount)
		assert.NotEmpty(t, entry.InvoiceNo)
	}
	assert.Equal(t, "IDLE", result.Results[2].CustomerCode)
	assert.Equal(t, BatchStatusNoActivity, result.Results[2].Status)
	assert.Equal(t, "0.00", result.Results[2].TotalAmount)
	assert.Empty(t, result.Results[2].InvoiceID)

	var unclaimed int64
	require.NoError(t, env.db.Model(&model.UnbilledTransaction{}).
		Where("customer_id = ? AND billed = ?", dormant.ID, false).
		Count(&unclaimed).Error)
	assert.EqualValues(t, 3, unclaimed, "inactive customer's activity must stay unbilled")

	// Everything is claimed; a rerun still covers every active customer
	// but creates nothing
	rerun, err := env.billing.RunMonthlyBilling(ctx, RunBillingRequest{Period: "2024-07", TaxRate: "10"})
	require.NoError(t, err)
	assert.Equal(t, 3, rerun.CustomersProcessed)
	assert.Equal(t, 0, rerun.InvoicesCreated)
	assert.Equal(t, "0.00", rerun.TotalAmount)
	for _, entry := range rerun.Results {
		assert.Equal(t, BatchStatusNoActivity, entry.Status)
	}
}

func TestRunMonthlyBillingCoversWholeLocalMonth(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "EDGE")
	seedStandardCard(t, env.db, customer.ID)

	// Activity in the first and last local hours of July, plus a June
	// event that must stay out of the run
	occurrences := []struct {
		at     time.Time
		inJuly bool
	}{
		{time.Date(2024, 6, 30, 23, 30, 0, 0, time.Local), false},
		{time.Date(2024, 7, 1, 0, 30, 0, 0, time.Local), true},
		{time.Date(2024, 7, 31, 23, 30, 0, 0, time.Local), true},
	}
	for _, occ := range occurrences {
		_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
			CustomerID:  customer.ID.String(),
			ServiceType: model.ServiceTypePicking,
			Quantity:    "10",
			UOM:         "PCS",
			OccurredAt:  occ.at.Format(time.RFC3339),
		})
		require.NoError(t, err)
	}

	result, err := env.billing.RunMonthlyBilling(ctx, RunBillingRequest{Period: "2024-07"})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, BatchStatusInvoiced, result.Results[0].Status)
	assert.Equal(t, 2, result.Results[0].TxnCount)
	assert.Equal(t, "30.00", result.TotalAmount) // 2 x 10 PCS x 1.5

	var juneLeft int64
	require.NoError(t, env.db.Model(&model.UnbilledTransaction{}).
		Where("customer_id = ? AND billed = ?", customer.ID, false).
		Count(&juneLeft).Error)
	assert.EqualValues(t, 1, juneLeft, "June activity must survive the July run")
}

// failingInvoiceService errors out for one customer and delegates the rest
type failingInvoiceService struct {
	InvoiceService
	failFor string
}

func (s *failingInvoiceService) GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (InvoiceResponse, error) {
	if req.CustomerID == s.failFor {
		return InvoiceResponse{}, errors.New("simulated invoice outage")
	}
	return s.InvoiceService.GenerateInvoice(ctx, req)
}

func TestRunMonthlyBillingFailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	healthy := seedCustomer(t, env.db, "AAA")
	seedStandardCard(t, env.db, healthy.ID)
	seedJulyActivity(t, env, healthy.ID.String())

	broken := seedCustomer(t, env.db, "BBB")
	seedStandardCard(t, env.db, broken.ID)
	seedJulyActivity(t, env, broken.ID.String())

	billing := NewBillingService(
		&failingInvoiceService{InvoiceService: env.invoices, failFor: broken.ID.String()},
		repository.NewCustomerRepository(env.db),
		repository.NewTransactionRepository(env.db),
		repository.NewAuditRepository(env.db),
		nil,
	)

	result, err := billing.RunMonthlyBilling(ctx, RunBillingRequest{Period: "2024-07"})
	require.NoError(t, err, "one customer failing must not abort the run")

	assert.Equal(t, 2, result.CustomersProcessed)
	assert.Equal(t, 1, result.InvoicesCreated)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "BBB", result.Failures[0].CustomerCode)
	assert.Contains(t, result.Failures[0].Error, "simulated invoice outage")

	require.Len(t, result.Results, 2)
	assert.Equal(t, BatchStatusInvoiced, result.Results[0].Status)
	assert.Equal(t, "AAA", result.Results[0].CustomerCode)
	assert.Equal(t, BatchStatusFailed, result.Results[1].Status)
	assert.Equal(t, "0.00", result.Results[1].TotalAmount)

	// The healthy customer's transactions are claimed, the failed
	// customer's stay unbilled for the next run
	var unclaimed int64
	require.NoError(t, env.db.Model(&model.UnbilledTransaction{}).
		Where("customer_id = ? AND billed = ?", broken.ID, false).
		Count(&unclaimed).Error)
	assert.EqualValues(t, 3, unclaimed)
}

func TestRunMonthlyBillingInvalidPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, period := range []string{"2024-13", "2024", "July 2024", "2024-7"} {
		_, err := env.billing.RunMonthlyBilling(ctx, RunBillingRequest{Period: period})
		assert.ErrorContains(t, err, "invalid period", "period %q", period)
	}
}

func TestGetBillingSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := seedCustomer(t, env.db, "AAA")
	seedStandardCard(t, env.db, first.ID)
	seedJulyActivity(t, env, first.ID.String())

	second := seedCustomer(t, env.db, "BBB")
	seedStandardCard(t, env.db, second.ID)
	_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  second.ID.String(),
		ServiceType: model.ServiceTypePicking,
		Quantity:    "10",
		UOM:         "PCS",
		OccurredAt:  "2024-07-15T12:00:00Z",
	})
	require.NoError(t, err)

	summary, err := env.billing.GetBillingSummary(ctx, "2024-07")
	require.NoError(t, err)

	assert.Equal(t, "2024-07", summary.Period)
	require.Len(t, summary.Customers, 2)
	assert.EqualValues(t, 4, summary.TxnCount)
	assert.Equal(t, "90.50", summary.TotalAmount) // 75.50 + 15.00

	assert.Equal(t, "AAA", summary.Customers[0].CustomerCode)
	assert.EqualValues(t, 3, summary.Customers[0].TxnCount)
	assert.Equal(t, "75.50", summary.Customers[0].TotalAmount)
	assert.Equal(t, "BBB", summary.Customers[1].CustomerCode)
	assert.Equal(t, "15.00", summary.Customers[1].TotalAmount)

	// Preview only: nothing gets claimed
	var claimed int64
	require.NoError(t, env.db.Model(&model.UnbilledTransaction{}).
		Where("billed = ?", true).Count(&claimed).Error)
	assert.Zero(t, claimed)

	empty, err := env.billing.GetBillingSummary(ctx, "2024-02")
	require.NoError(t, err)
	assert.Empty(t, empty.Customers)
	assert.Equal(t, "0.00", empty.TotalAmount)
}
