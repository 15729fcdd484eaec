package service

import (
	"context"
	"testing"

	"wms/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerCRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	end := "2025-06-30"
	created, err := env.customers.CreateCustomer(ctx, CreateCustomerRequest{
		Code:          "ACME",
		Name:          "Acme Logistics Ltd",
		TaxCode:       "TAX-001",
		ContactPerson: "J. Doe",
		Email:         "billing@acme.example",
		Contracts: []ContractRequest{
			{ContractNo: "CT-2024-01", StartDate: "2024-07-01", EndDate: &end},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "active", created.Status)
	require.Len(t, created.Contracts, 1)
	assert.Equal(t, "CT-2024-01", created.Contracts[0].ContractNo)
	require.NotNil(t, created.Contracts[0].EndDate)
	assert.Equal(t, end, *created.Contracts[0].EndDate)

	updated, err := env.customers.UpdateCustomer(ctx, created.ID, UpdateCustomerRequest{
		Name:   "Acme Logistics International",
		Status: "inactive",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Logistics International", updated.Name)
	assert.Equal(t, "inactive", updated.Status)
	assert.Equal(t, "TAX-001", updated.TaxCode, "unset fields keep their value")

	fetched, err := env.customers.GetCustomer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Name, fetched.Name)
}

func TestCreateCustomerContractValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	end := "2024-01-01"
	_, err := env.customers.CreateCustomer(ctx, CreateCustomerRequest{
		Code: "BAD",
		Name: "Backwards contract",
		Contracts: []ContractRequest{
			{ContractNo: "CT-1", StartDate: "2024-07-01", EndDate: &end},
		},
	})
	assert.ErrorContains(t, err, "end_date")
}

func TestDeleteCustomerKeepsBillingHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	customer := seedCustomer(t, env.db, "GONE")
	seedStandardCard(t, env.db, customer.ID)
	_, err := env.transactions.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  customer.ID.String(),
		ServiceType: model.ServiceTypePicking,
		Quantity:    "5",
		UOM:         "PCS",
	})
	require.NoError(t, err)

	require.NoError(t, env.customers.DeleteCustomer(ctx, customer.ID.String()))

	_, err = env.customers.GetCustomer(ctx, customer.ID.String())
	assert.ErrorContains(t, err, "customer not found")

	// Soft delete: the ledger rows survive the customer
	var count int64
	require.NoError(t, env.db.Model(&model.UnbilledTransaction{}).
		Where("customer_id = ?", customer.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestListCustomers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedCustomer(t, env.db, "AAA")
	seedCustomer(t, env.db, "BBB")
	inactive := seedCustomer(t, env.db, "CCC")
	require.NoError(t, env.db.Model(inactive).Update("status", "inactive").Error)

	all, total, err := env.customers.ListCustomers(ctx, "", "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	active, total, err := env.customers.ListCustomers(ctx, "active", "", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, active, 2)

	found, total, err := env.customers.ListCustomers(ctx, "", "BBB", 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, found, 1)
	assert.Equal(t, "BBB", found[0].Code)
}
