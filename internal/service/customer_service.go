package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wms/internal/model"
	"wms/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type ContractRequest struct {
	ContractNo string  `json:"contract_no" binding:"required"`
	StartDate  string  `json:"start_date" binding:"required"` // YYYY-MM-DD
	EndDate    *string `json:"end_date"`
	Note       string  `json:"note"`
}

type CreateCustomerRequest struct {
	Code           string            `json:"code" binding:"required"`
	Name           string            `json:"name" binding:"required"`
	TaxCode        string            `json:"tax_code"`
	ContactPerson  string            `json:"contact_person"`
	Phone          string            `json:"phone"`
	Email          string            `json:"email" binding:"omitempty,email"`
	BillingAddress string            `json:"billing_address"`
	Contracts      []ContractRequest `json:"contracts" binding:"omitempty,dive"`
}

type UpdateCustomerRequest struct {
	Name           string `json:"name"`
	Status         string `json:"status" binding:"omitempty,oneof=active inactive"`
	TaxCode        string `json:"tax_code"`
	ContactPerson  string `json:"contact_person"`
	Phone          string `json:"phone"`
	Email          string `json:"email" binding:"omitempty,email"`
	BillingAddress string `json:"billing_address"`
}

type ContractResponse struct {
	ID         string  `json:"id"`
	ContractNo string  `json:"contract_no"`
	StartDate  string  `json:"start_date"`
	EndDate    *string `json:"end_date"`
	Note       string  `json:"note"`
}

type CustomerResponse struct {
	ID             string             `json:"id"`
	Code           string             `json:"code"`
	Name           string             `json:"name"`
	Status         string             `json:"status"`
	TaxCode        string             `json:"tax_code"`
	ContactPerson  string             `json:"contact_person"`
	Phone          string             `json:"phone"`
	Email          string             `json:"email"`
	BillingAddress string             `json:"billing_address"`
	Contracts      []ContractResponse `json:"contracts,omitempty"`
	CreatedAt      string             `json:"created_at"`
}

// --- Interface ---

type CustomerService interface {
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (CustomerResponse, error)
	UpdateCustomer(ctx context.Context, id string, req UpdateCustomerRequest) (CustomerResponse, error)
	DeleteCustomer(ctx context.Context, id string) error
	GetCustomer(ctx context.Context, id string) (CustomerResponse, error)
	ListCustomers(ctx context.Context, status, search string, page, limit int) ([]CustomerResponse, int64, error)
}

type customerService struct {
	customerRepo repository.CustomerRepository
	auditRepo    repository.AuditRepository
}

func NewCustomerService(customerRepo repository.CustomerRepository, auditRepo repository.AuditRepository) CustomerService {
	return &customerService{customerRepo: customerRepo, auditRepo: auditRepo}
}

// --- Implementation ---

func (s *customerService) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (CustomerResponse, error) {
	customer := model.Customer{
		Code:           req.Code,
		Name:           req.Name,
		Status:         model.CustomerStatusActive,
		TaxCode:        req.TaxCode,
		ContactPerson:  req.ContactPerson,
		Phone:          req.Phone,
		Email:          req.Email,
		BillingAddress: req.BillingAddress,
	}
	for _, contractReq := range req.Contracts {
		contract, err := buildContract(contractReq)
		if err != nil {
			return CustomerResponse{}, err
		}
		customer.Contracts = append(customer.Contracts, contract)
	}

	if err := s.customerRepo.Create(ctx, &customer); err != nil {
		return CustomerResponse{}, fmt.Errorf("failed to create customer: %w", err)
	}

	s.writeAuditLog(ctx, model.ActionCreateCustomer, customer.ID.String(), customer.Code, req)
	return toCustomerResponse(customer), nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, id string, req UpdateCustomerRequest) (CustomerResponse, error) {
	customerID, err := uuid.Parse(id)
	if err != nil {
		return CustomerResponse{}, fmt.Errorf("invalid customer id: %w", err)
	}
	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return CustomerResponse{}, fmt.Errorf("customer not found: %w", err)
	}

	if req.Name != "" {
		customer.Name = req.Name
	}
	if req.Status != "" {
		customer.Status = req.Status
	}
	if req.TaxCode != "" {
		customer.TaxCode = req.TaxCode
	}
	if req.ContactPerson != "" {
		customer.ContactPerson = req.ContactPerson
	}
	if req.Phone != "" {
		customer.Phone = req.Phone
	}
	if req.Email != "" {
		customer.Email = req.Email
	}
	if req.BillingAddress != "" {
		customer.BillingAddress = req.BillingAddress
	}

	if err := s.customerRepo.Update(ctx, customer); err != nil {
		return CustomerResponse{}, fmt.Errorf("failed to update customer: %w", err)
	}

	s.writeAuditLog(ctx, model.ActionUpdateCustomer, customer.ID.String(), customer.Code, req)
	return toCustomerResponse(*customer), nil
}

// DeleteCustomer soft-deletes; billing history referencing the customer
// stays intact
func (s *customerService) DeleteCustomer(ctx context.Context, id string) error {
	customerID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid customer id: %w", err)
	}
	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return fmt.Errorf("customer not found: %w", err)
	}
	if err := s.customerRepo.Delete(ctx, customerID); err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	s.writeAuditLog(ctx, model.ActionDeleteCustomer, id, customer.Code, nil)
	return nil
}

func (s *customerService) GetCustomer(ctx context.Context, id string) (CustomerResponse, error) {
	customerID, err := uuid.Parse(id)
	if err != nil {
		return CustomerResponse{}, fmt.Errorf("invalid customer id: %w", err)
	}
	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return CustomerResponse{}, fmt.Errorf("customer not found: %w", err)
	}
	return toCustomerResponse(*customer), nil
}

func (s *customerService) ListCustomers(ctx context.Context, status, search string, page, limit int) ([]CustomerResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	customers, total, err := s.customerRepo.List(ctx, status, search, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch customers: %w", err)
	}

	result := make([]CustomerResponse, 0, len(customers))
	for _, customer := range customers {
		result = append(result, toCustomerResponse(customer))
	}
	return result, total, nil
}

// --- Helpers ---

func buildContract(req ContractRequest) (model.CustomerContract, error) {
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return model.CustomerContract{}, fmt.Errorf("contract %s: invalid start_date: %w", req.ContractNo, err)
	}
	contract := model.CustomerContract{
		ContractNo: req.ContractNo,
		StartDate:  startDate,
		Note:       req.Note,
	}
	if req.EndDate != nil && *req.EndDate != "" {
		endDate, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			return model.CustomerContract{}, fmt.Errorf("contract %s: invalid end_date: %w", req.ContractNo, err)
		}
		if endDate.Before(startDate) {
			return model.CustomerContract{}, fmt.Errorf("contract %s: end_date precedes start_date", req.ContractNo)
		}
		contract.EndDate = &endDate
	}
	return contract, nil
}

func (s *customerService) writeAuditLog(ctx context.Context, action, entityID, entityName string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)
	_ = s.auditRepo.Log(ctx, &model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	})
}

func toCustomerResponse(customer model.Customer) CustomerResponse {
	resp := CustomerResponse{
		ID:             customer.ID.String(),
		Code:           customer.Code,
		Name:           customer.Name,
		Status:         customer.Status,
		TaxCode:        customer.TaxCode,
		ContactPerson:  customer.ContactPerson,
		Phone:          customer.Phone,
		Email:          customer.Email,
		BillingAddress: customer.BillingAddress,
		CreatedAt:      customer.CreatedAt.Format(time.RFC3339),
	}
	for _, contract := range customer.Contracts {
		contractResp := ContractResponse{
			ID:         contract.ID.String(),
			ContractNo: contract.ContractNo,
			StartDate:  contract.StartDate.Format("2006-01-02"),
			Note:       contract.Note,
		}
		if contract.EndDate != nil {
			v := contract.EndDate.Format("2006-01-02")
			contractResp.EndDate = &v
		}
		resp.Contracts = append(resp.Contracts, contractResp)
	}
	return resp
}
