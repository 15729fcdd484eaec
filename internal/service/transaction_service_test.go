package service

import (
	"context"
	"testing"

	"wms/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTransactionPriced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedStandardCard(t, env.db, customer.ID)

	resp, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  customer.ID.String(),
		ServiceType: model.ServiceTypePicking,
		Description: "Picking for order SO-001",
		Quantity:    "25",
		UOM:         "PCS",
		OccurredAt:  "2024-07-10T10:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PricingStatusPriced, resp.PricingStatus)
	assert.Empty(t, resp.UnpricedReason)
	assert.Equal(t, "1.5000", resp.Rate)
	assert.Equal(t, "37.5000", resp.Amount)
	assert.False(t, resp.Billed)
	assert.Nil(t, resp.InvoiceID)

	var stored model.UnbilledTransaction
	require.NoError(t, env.db.First(&stored, "id = ?", resp.ID).Error)
	assert.True(t, stored.Amount.Equal(d("37.5")))
}

func TestCreateTransactionMinFeeFloor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedStandardCard(t, env.db, customer.ID)

	// 2 m3 at 5/m3 is 10, below the 20 floor
	resp, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  customer.ID.String(),
		ServiceType: model.ServiceTypeStorage,
		Quantity:    "2",
		UOM:         "m3",
	})
	require.NoError(t, err)
	assert.Equal(t, "20.0000", resp.Amount)
	assert.Equal(t, model.PricingStatusPriced, resp.PricingStatus)
}

func TestCreateTransactionDegradesWithoutCard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "NOCARD")

	resp, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  customer.ID.String(),
		ServiceType: model.ServiceTypePicking,
		Quantity:    "5",
		UOM:         "PCS",
	})
	require.NoError(t, err, "pricing failure must not reject the event")

	assert.Equal(t, model.PricingStatusUnpriced, resp.PricingStatus)
	assert.Equal(t, "no active rate card", resp.UnpricedReason)
	assert.Equal(t, "0.0000", resp.Amount)
	assert.Equal(t, "0.0000", resp.Rate)
}

func TestCreateTransactionDegradesOnTierMiss(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedStandardCard(t, env.db, customer.ID)

	// No DELIVERY rule on the card
	resp, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  customer.ID.String(),
		ServiceType: model.ServiceTypeDelivery,
		Quantity:    "12",
		UOM:         "km",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PricingStatusUnpriced, resp.PricingStatus)
	assert.Equal(t, "no applicable rate", resp.UnpricedReason)
	assert.Equal(t, "0.0000", resp.Amount)
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	t.Run("zero quantity", func(t *testing.T) {
		_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
			CustomerID:  customer.ID.String(),
			ServiceType: model.ServiceTypePicking,
			Quantity:    "0",
			UOM:         "PCS",
		})
		assert.ErrorContains(t, err, "quantity must be positive")
	})

	t.Run("negative quantity", func(t *testing.T) {
		_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
			CustomerID:  customer.ID.String(),
			ServiceType: model.ServiceTypePicking,
			Quantity:    "-3",
			UOM:         "PCS",
		})
		assert.ErrorContains(t, err, "quantity must be positive")
	})

	t.Run("unknown customer", func(t *testing.T) {
		_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
			CustomerID:  uuid.NewString(),
			ServiceType: model.ServiceTypePicking,
			Quantity:    "3",
			UOM:         "PCS",
		})
		assert.ErrorContains(t, err, "customer not found")
	})

	t.Run("bad occurred_at", func(t *testing.T) {
		_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
			CustomerID:  customer.ID.String(),
			ServiceType: model.ServiceTypePicking,
			Quantity:    "3",
			UOM:         "PCS",
			OccurredAt:  "10/07/2024",
		})
		assert.ErrorContains(t, err, "occurred_at")
	})

	t.Run("bad linkage id", func(t *testing.T) {
		_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
			CustomerID:  customer.ID.String(),
			ServiceType: model.ServiceTypePicking,
			Quantity:    "3",
			UOM:         "PCS",
			OrderID:     "not-a-uuid",
		})
		assert.ErrorContains(t, err, "order_id")
	})
}

func TestEventWrappers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")
	seedCard(t, env.db, customer.ID, []model.RateCardRule{
		{ServiceType: model.ServiceTypeReceipt, UOM: "kg", TierFrom: d("0"), Price: d("0.2"), IsActive: true, SortOrder: 0},
		{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), Price: d("1"), IsActive: true, SortOrder: 1},
		{ServiceType: model.ServiceTypeDelivery, UOM: "km", TierFrom: d("0"), Price: d("2"), IsActive: true, SortOrder: 2},
	})

	t.Run("receipt bills by weight", func(t *testing.T) {
		resp, err := env.transactions.CreateReceiptTxn(ctx, ReceiptEventRequest{
			CustomerID: customer.ID.String(),
			OrderNo:    "PO-100",
			WeightKg:   "150",
		})
		require.NoError(t, err)
		assert.Equal(t, model.ServiceTypeReceipt, resp.ServiceType)
		assert.Equal(t, "kg", resp.UOM)
		assert.Equal(t, "30.0000", resp.Amount)
		assert.Contains(t, resp.Description, "PO-100")
	})

	t.Run("storage quantity is volume times days", func(t *testing.T) {
		resp, err := env.transactions.CreateStorageTxn(ctx, StorageEventRequest{
			CustomerID: customer.ID.String(),
			VolumeM3:   "2.5",
			Days:       10,
		})
		require.NoError(t, err)
		assert.Equal(t, "25.0000", resp.Quantity)
		assert.Equal(t, "m3", resp.UOM)
		assert.Equal(t, "25.0000", resp.Amount)
		require.NotNil(t, resp.Metadata)
		assert.EqualValues(t, 10, resp.Metadata["storage_days"])
	})

	t.Run("delivery bills by distance", func(t *testing.T) {
		resp, err := env.transactions.CreateDeliveryTxn(ctx, DeliveryEventRequest{
			CustomerID: customer.ID.String(),
			OrderNo:    "SO-200",
			DistanceKm: "18",
		})
		require.NoError(t, err)
		assert.Equal(t, "km", resp.UOM)
		assert.Equal(t, "36.0000", resp.Amount)
	})

	t.Run("picking defaults to PCS", func(t *testing.T) {
		resp, err := env.transactions.CreatePickingTxn(ctx, PickingEventRequest{
			CustomerID: customer.ID.String(),
			OrderNo:    "SO-200",
			Quantity:   "4",
		})
		require.NoError(t, err)
		assert.Equal(t, "PCS", resp.UOM)
		// Card has no PICKING rule; degrades, never rejects
		assert.Equal(t, model.PricingStatusUnpriced, resp.PricingStatus)
	})
}

func TestListTransactionsFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := seedCustomer(t, env.db, "ONE")
	second := seedCustomer(t, env.db, "TWO")
	seedStandardCard(t, env.db, first.ID)

	for i := 0; i < 3; i++ {
		_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
			CustomerID:  first.ID.String(),
			ServiceType: model.ServiceTypePicking,
			Quantity:    "1",
			UOM:         "PCS",
		})
		require.NoError(t, err)
	}
	_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  second.ID.String(),
		ServiceType: model.ServiceTypePicking,
		Quantity:    "1",
		UOM:         "PCS",
	})
	require.NoError(t, err)

	all, total, err := env.transactions.ListTransactions(ctx, TransactionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, all, 4)

	scoped, total, err := env.transactions.ListTransactions(ctx, TransactionFilter{CustomerID: first.ID.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, txn := range scoped {
		assert.Equal(t, first.ID.String(), txn.CustomerID)
	}

	unbilled := false
	_, total, err = env.transactions.ListTransactions(ctx, TransactionFilter{Billed: &unbilled})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
}
