package pricing

import (
	"errors"
	"testing"

	"wms/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

// Two-tier storage card: [0,10] at 5/m3 with a 20 floor, then [10,∞) at 3/m3
func storageRules() []model.RateCardRule {
	return []model.RateCardRule{
		{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), TierTo: dp("10"), Price: d("5"), MinFee: dp("20"), IsActive: true},
		{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("10"), Price: d("3"), IsActive: true},
	}
}

func TestCalculateTierResolution(t *testing.T) {
	rules := storageRules()

	tests := []struct {
		name         string
		qty          string
		wantBase     string
		wantFinal    string
		wantMinFee   bool
		wantUnitRate string
	}{
		{"floor tied, not binding", "4", "20", "20", false, "5"},
		{"floor binding", "2", "10", "20", true, "5"},
		{"second tier", "20", "60", "60", false, "3"},
		{"shared boundary goes to first tier", "10", "50", "50", false, "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Calculate(rules, model.ServiceTypeStorage, d(tt.qty), "m3")
			require.NoError(t, err)
			assert.True(t, res.BasePrice.Equal(d(tt.wantBase)), "base %s", res.BasePrice)
			assert.True(t, res.FinalPrice.Equal(d(tt.wantFinal)), "final %s", res.FinalPrice)
			assert.Equal(t, tt.wantMinFee, res.Breakdown.MinFeeApplied)
			assert.True(t, res.Breakdown.UnitRate.Equal(d(tt.wantUnitRate)), "rate %s", res.Breakdown.UnitRate)
			assert.True(t, res.Breakdown.Subtotal.Equal(res.BasePrice))
		})
	}
}

func TestCalculateFirstMatchWinsOnOverlap(t *testing.T) {
	// Both tiers contain qty=5; the earlier rule must be applied even
	// though the later one is narrower.
	rules := []model.RateCardRule{
		{ID: uuid.New(), ServiceType: model.ServiceTypePicking, UOM: "PCS", TierFrom: d("0"), Price: d("2"), IsActive: true},
		{ID: uuid.New(), ServiceType: model.ServiceTypePicking, UOM: "PCS", TierFrom: d("3"), TierTo: dp("7"), Price: d("100"), IsActive: true},
	}

	res, err := Calculate(rules, model.ServiceTypePicking, d("5"), "PCS")
	require.NoError(t, err)
	assert.True(t, res.FinalPrice.Equal(d("10")))
	assert.Equal(t, rules[0].ID, res.AppliedRule.ID)
}

func TestCalculateNoMatch(t *testing.T) {
	rules := storageRules()

	t.Run("unknown service type", func(t *testing.T) {
		_, err := Calculate(rules, "FUMIGATION", d("5"), "m3")
		var noRate *NoRateError
		require.ErrorAs(t, err, &noRate)
		assert.Equal(t, "FUMIGATION", noRate.ServiceType)
	})

	t.Run("unknown uom", func(t *testing.T) {
		_, err := Calculate(rules, model.ServiceTypeStorage, d("5"), "kg")
		var noRate *NoRateError
		require.ErrorAs(t, err, &noRate)
		assert.Equal(t, "kg", noRate.UOM)
	})

	t.Run("qty outside every tier", func(t *testing.T) {
		bounded := []model.RateCardRule{
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("1"), TierTo: dp("10"), Price: d("5"), IsActive: true},
		}
		_, err := Calculate(bounded, model.ServiceTypeStorage, d("50"), "m3")
		var noRate *NoRateError
		require.ErrorAs(t, err, &noRate)
		assert.True(t, noRate.Qty.Equal(d("50")))
	})

	t.Run("inactive rules are not candidates", func(t *testing.T) {
		inactive := storageRules()
		for i := range inactive {
			inactive[i].IsActive = false
		}
		_, err := Calculate(inactive, model.ServiceTypeStorage, d("5"), "m3")
		assert.Error(t, err)
	})
}

func TestStorageCharge(t *testing.T) {
	rules := storageRules()

	// 2 m3 over 10 days = 20 m3-days, lands in the second tier
	res, err := StorageCharge(rules, d("2"), 10)
	require.NoError(t, err)
	assert.True(t, res.FinalPrice.Equal(d("60")))
}

func TestDeliveryChargeFallback(t *testing.T) {
	kmAndKg := []model.RateCardRule{
		{ID: uuid.New(), ServiceType: model.ServiceTypeDelivery, UOM: "km", TierFrom: d("0"), Price: d("1.5"), IsActive: true},
		{ID: uuid.New(), ServiceType: model.ServiceTypeDelivery, UOM: "kg", TierFrom: d("0"), Price: d("0.5"), IsActive: true},
	}
	kgOnly := kmAndKg[1:]

	res, err := DeliveryCharge(kmAndKg, d("40"), d("100"))
	require.NoError(t, err)
	assert.Equal(t, "km", res.Breakdown.UOM)
	assert.True(t, res.FinalPrice.Equal(d("60")))

	// No km tier: the distance failure is swallowed and the weight
	// attempt is used instead
	res, err = DeliveryCharge(kgOnly, d("40"), d("100"))
	require.NoError(t, err)
	assert.Equal(t, "kg", res.Breakdown.UOM)
	assert.True(t, res.FinalPrice.Equal(d("50")))

	// Neither tier: only the second failure surfaces
	_, err = DeliveryCharge(nil, d("40"), d("100"))
	var noRate *NoRateError
	require.ErrorAs(t, err, &noRate)
	assert.Equal(t, "kg", noRate.UOM)
}

func TestIntrospection(t *testing.T) {
	rules := []model.RateCardRule{
		{ServiceType: model.ServiceTypeStorage, UOM: "m3", IsActive: true},
		{ServiceType: model.ServiceTypePicking, UOM: "PCS", IsActive: true},
		{ServiceType: model.ServiceTypePicking, UOM: "kg", IsActive: true},
		{ServiceType: model.ServiceTypeStorage, UOM: "m3", IsActive: true},
	}

	assert.ElementsMatch(t, []string{"STORAGE", "PICKING"}, ServiceTypes(rules))
	assert.ElementsMatch(t, []string{"PCS", "kg"}, UnitsOfMeasure(rules, model.ServiceTypePicking))
	assert.Empty(t, UnitsOfMeasure(rules, "DELIVERY"))
}

func TestValidateRules(t *testing.T) {
	t.Run("clean partition", func(t *testing.T) {
		assert.Empty(t, ValidateRules(storageRules()))
	})

	t.Run("overlap", func(t *testing.T) {
		rules := []model.RateCardRule{
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), TierTo: dp("15"), Price: d("5"), IsActive: true},
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("10"), Price: d("3"), IsActive: true},
		}
		issues := ValidateRules(rules)
		require.Len(t, issues, 1)
		assert.Equal(t, TierIssueOverlap, issues[0].Kind)
		assert.Equal(t, "m3", issues[0].UOM)
		assert.Len(t, issues[0].RuleIDs, 2)
	})

	t.Run("gap", func(t *testing.T) {
		rules := []model.RateCardRule{
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), TierTo: dp("10"), Price: d("5"), IsActive: true},
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("20"), Price: d("3"), IsActive: true},
		}
		issues := ValidateRules(rules)
		require.Len(t, issues, 1)
		assert.Equal(t, TierIssueGap, issues[0].Kind)
		assert.True(t, issues[0].From.Equal(d("10")))
		require.NotNil(t, issues[0].To)
		assert.True(t, issues[0].To.Equal(d("20")))
	})

	t.Run("inactive rules ignored", func(t *testing.T) {
		rules := []model.RateCardRule{
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), TierTo: dp("15"), Price: d("5"), IsActive: true},
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("10"), Price: d("3"), IsActive: false},
		}
		assert.Empty(t, ValidateRules(rules))
	})

	t.Run("groups are independent", func(t *testing.T) {
		rules := []model.RateCardRule{
			{ID: uuid.New(), ServiceType: model.ServiceTypeStorage, UOM: "m3", TierFrom: d("0"), TierTo: dp("10"), Price: d("5"), IsActive: true},
			{ID: uuid.New(), ServiceType: model.ServiceTypePicking, UOM: "PCS", TierFrom: d("0"), Price: d("2"), IsActive: true},
		}
		assert.Empty(t, ValidateRules(rules))
	})
}

func TestNoRateErrorIs(t *testing.T) {
	_, err := Calculate(nil, model.ServiceTypeStorage, d("1"), "m3")
	var noRate *NoRateError
	assert.True(t, errors.As(err, &noRate))
	assert.Contains(t, err.Error(), "STORAGE")
}
