package service

import (
	"context"
	"testing"

	"wms/internal/model"
	"wms/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tierTwoCardRequest(customerID string) CreateRateCardRequest {
	to := "10"
	minFee := "20"
	return CreateRateCardRequest{
		CustomerID: customerID,
		Name:       "Standard 2024",
		Rules: []RateCardRuleRequest{
			{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "0", TierTo: &to, Price: "5", MinFee: &minFee},
			{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "10", Price: "3"},
		},
	}
}

func TestCreateRateCard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	card, err := env.rateCards.CreateRateCard(ctx, tierTwoCardRequest(customer.ID.String()))
	require.NoError(t, err)

	assert.Equal(t, "Standard 2024", card.Name)
	assert.Equal(t, "USD", card.Currency)
	assert.True(t, card.IsActive)
	require.Len(t, card.Rules, 2)
	assert.Equal(t, "5.0000", card.Rules[0].Price)
	require.NotNil(t, card.Rules[0].MinFee)
	assert.Equal(t, "20.0000", *card.Rules[0].MinFee)
	assert.Nil(t, card.Rules[1].TierTo)
	assert.Empty(t, card.Warnings, "contiguous tiers must not be flagged")
}

func TestCreateRateCardWarnings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	t.Run("overlap flagged", func(t *testing.T) {
		to := "10"
		card, err := env.rateCards.CreateRateCard(ctx, CreateRateCardRequest{
			CustomerID: customer.ID.String(),
			Name:       "Overlapping",
			Rules: []RateCardRuleRequest{
				{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "0", TierTo: &to, Price: "5"},
				{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "8", Price: "3"},
			},
		})
		require.NoError(t, err, "overlaps warn, they do not reject")
		require.Len(t, card.Warnings, 1)
		assert.Equal(t, pricing.TierIssueOverlap, card.Warnings[0].Kind)
	})

	t.Run("gap flagged", func(t *testing.T) {
		to := "10"
		card, err := env.rateCards.CreateRateCard(ctx, CreateRateCardRequest{
			CustomerID: customer.ID.String(),
			Name:       "Gapped",
			Rules: []RateCardRuleRequest{
				{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "0", TierTo: &to, Price: "5"},
				{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "15", Price: "3"},
			},
		})
		require.NoError(t, err)
		require.Len(t, card.Warnings, 1)
		assert.Equal(t, pricing.TierIssueGap, card.Warnings[0].Kind)
	})
}

func TestCreateRateCardValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	t.Run("inverted tier bounds", func(t *testing.T) {
		to := "5"
		_, err := env.rateCards.CreateRateCard(ctx, CreateRateCardRequest{
			CustomerID: customer.ID.String(),
			Name:       "Broken",
			Rules: []RateCardRuleRequest{
				{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "10", TierTo: &to, Price: "5"},
			},
		})
		assert.ErrorContains(t, err, "tier_to")
	})

	t.Run("negative price", func(t *testing.T) {
		_, err := env.rateCards.CreateRateCard(ctx, CreateRateCardRequest{
			CustomerID: customer.ID.String(),
			Name:       "Broken",
			Rules: []RateCardRuleRequest{
				{ServiceType: model.ServiceTypeStorage, UOM: "m3", Price: "-1"},
			},
		})
		assert.ErrorContains(t, err, "price must not be negative")
	})

	t.Run("unknown customer", func(t *testing.T) {
		req := tierTwoCardRequest("7b1f0f71-67e1-4fb4-9071-5ad12d6a0d1e")
		_, err := env.rateCards.CreateRateCard(ctx, req)
		assert.ErrorContains(t, err, "customer not found")
	})
}

func TestRateCardActivationIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	first, err := env.rateCards.CreateRateCard(ctx, tierTwoCardRequest(customer.ID.String()))
	require.NoError(t, err)

	// Creating a second active card retires the first
	second, err := env.rateCards.CreateRateCard(ctx, tierTwoCardRequest(customer.ID.String()))
	require.NoError(t, err)

	var stored model.RateCard
	require.NoError(t, env.db.First(&stored, "id = ?", first.ID).Error)
	assert.False(t, stored.IsActive)

	// Re-activating the first retires the second
	reactivated, err := env.rateCards.ActivateRateCard(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)

	stored = model.RateCard{}
	require.NoError(t, env.db.First(&stored, "id = ?", second.ID).Error)
	assert.False(t, stored.IsActive)

	var active int64
	require.NoError(t, env.db.Model(&model.RateCard{}).
		Where("customer_id = ? AND is_active = ?", customer.ID, true).
		Count(&active).Error)
	assert.EqualValues(t, 1, active)
}

func TestUpdateRateCardReplacesRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	card, err := env.rateCards.CreateRateCard(ctx, tierTwoCardRequest(customer.ID.String()))
	require.NoError(t, err)

	updated, err := env.rateCards.UpdateRateCard(ctx, card.ID, UpdateRateCardRequest{
		Name: "Standard 2025",
		Rules: []RateCardRuleRequest{
			{ServiceType: model.ServiceTypePicking, UOM: "PCS", Price: "2"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Standard 2025", updated.Name)
	require.Len(t, updated.Rules, 1)
	assert.Equal(t, model.ServiceTypePicking, updated.Rules[0].ServiceType)

	// Old rule rows are gone, not orphaned
	var count int64
	require.NoError(t, env.db.Model(&model.RateCardRule{}).
		Where("rate_card_id = ?", card.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Omitting rules keeps them
	renamed, err := env.rateCards.UpdateRateCard(ctx, card.ID, UpdateRateCardRequest{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)
	assert.Len(t, renamed.Rules, 1)
}

func TestTestPriceDryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	card, err := env.rateCards.CreateRateCard(ctx, tierTwoCardRequest(customer.ID.String()))
	require.NoError(t, err)

	t.Run("min fee applied", func(t *testing.T) {
		res, err := env.rateCards.TestPrice(ctx, card.ID, TestPriceRequest{
			ServiceType: model.ServiceTypeStorage,
			Quantity:    "2",
			UOM:         "m3",
		})
		require.NoError(t, err)
		assert.Equal(t, "20.0000", res.FinalPrice)
		assert.Equal(t, "10.0000", res.BasePrice)
		assert.True(t, res.Breakdown.MinFeeApplied)
	})

	t.Run("second tier", func(t *testing.T) {
		res, err := env.rateCards.TestPrice(ctx, card.ID, TestPriceRequest{
			ServiceType: model.ServiceTypeStorage,
			Quantity:    "20",
			UOM:         "m3",
		})
		require.NoError(t, err)
		assert.Equal(t, "60.0000", res.FinalPrice)
		assert.False(t, res.Breakdown.MinFeeApplied)
	})

	t.Run("no applicable rate", func(t *testing.T) {
		_, err := env.rateCards.TestPrice(ctx, card.ID, TestPriceRequest{
			ServiceType: model.ServiceTypeDelivery,
			Quantity:    "5",
			UOM:         "km",
		})
		var noRate *pricing.NoRateError
		assert.ErrorAs(t, err, &noRate)
	})

	t.Run("nothing recorded", func(t *testing.T) {
		var count int64
		require.NoError(t, env.db.Model(&model.UnbilledTransaction{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestRateCardLookups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	to := "10"
	card, err := env.rateCards.CreateRateCard(ctx, CreateRateCardRequest{
		CustomerID: customer.ID.String(),
		Name:       "Mixed",
		Rules: []RateCardRuleRequest{
			{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "0", TierTo: &to, Price: "5"},
			{ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: "10", Price: "3"},
			{ServiceType: model.ServiceTypePicking, UOM: "PCS", Price: "1.5"},
		},
	})
	require.NoError(t, err)

	types, err := env.rateCards.ListServiceTypes(ctx, card.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{model.ServiceTypeStorage, model.ServiceTypePicking}, types)

	uoms, err := env.rateCards.ListUnitsOfMeasure(ctx, card.ID, model.ServiceTypeStorage)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3"}, uoms)
}

func TestDeleteRateCard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	customer := seedCustomer(t, env.db, "ACME")

	card, err := env.rateCards.CreateRateCard(ctx, tierTwoCardRequest(customer.ID.String()))
	require.NoError(t, err)

	require.NoError(t, env.rateCards.DeleteRateCard(ctx, card.ID))

	_, err = env.rateCards.GetRateCard(ctx, card.ID)
	assert.ErrorContains(t, err, "rate card not found")

	err = env.rateCards.DeleteRateCard(ctx, card.ID)
	assert.ErrorContains(t, err, "rate card not found")
}
