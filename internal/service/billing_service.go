package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"time"

	"wms/internal/model"
	"wms/internal/repository"
	ws "wms/internal/websocket"

	"github.com/shopspring/decimal"
)

var billingPeriodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Per-customer outcome codes within a billing run
const (
	BatchStatusInvoiced   = "INVOICED"
	BatchStatusNoActivity = "NO_ACTIVITY"
	BatchStatusFailed     = "FAILED"
)

// --- DTOs ---

type RunBillingRequest struct {
	Period  string `json:"period" binding:"required"` // YYYY-MM
	TaxRate string `json:"tax_rate"`                  // percent, defaults to 0
}

// BatchCustomerResult is one customer's outcome in a billing run. A
// customer with no unbilled activity is a zero-amount success, not a
// failure.
type BatchCustomerResult struct {
	CustomerID   string `json:"customer_id"`
	CustomerCode string `json:"customer_code"`
	Status       string `json:"status"` // INVOICED, NO_ACTIVITY, FAILED
	InvoiceID    string `json:"invoice_id,omitempty"`
	InvoiceNo    string `json:"invoice_no,omitempty"`
	TxnCount     int    `json:"txn_count"`
	TotalAmount  string `json:"total_amount"`
	Error        string `json:"error,omitempty"`
}

type BatchFailure struct {
	CustomerID   string `json:"customer_id"`
	CustomerCode string `json:"customer_code"`
	Error        string `json:"error"`
}

// BatchBillingResult is the aggregate outcome of one monthly run. One
// customer failing never aborts the sweep; their failure lands in both
// Results and Failures and the run moves on.
type BatchBillingResult struct {
	Period             string                `json:"period"`
	CustomersProcessed int                   `json:"customers_processed"`
	InvoicesCreated    int                   `json:"invoices_created"`
	Failed             int                   `json:"failed"`
	TotalAmount        string                `json:"total_amount"`
	Results            []BatchCustomerResult `json:"results"`
	Failures           []BatchFailure        `json:"failures"`
}

type BillingSummaryRow struct {
	CustomerID   string `json:"customer_id"`
	CustomerCode string `json:"customer_code"`
	CustomerName string `json:"customer_name"`
	TxnCount     int64  `json:"txn_count"`
	TotalAmount  string `json:"total_amount"`
}

type BillingSummary struct {
	Period      string              `json:"period"`
	Customers   []BillingSummaryRow `json:"customers"`
	TxnCount    int64               `json:"txn_count"`
	TotalAmount string              `json:"total_amount"`
}

// --- Interface ---

type BillingService interface {
	RunMonthlyBilling(ctx context.Context, req RunBillingRequest) (BatchBillingResult, error)
	GetBillingSummary(ctx context.Context, period string) (BillingSummary, error)
}

type billingService struct {
	invoiceService InvoiceService
	customerRepo   repository.CustomerRepository
	txnRepo        repository.TransactionRepository
	auditRepo      repository.AuditRepository
	hub            *ws.Hub
}

func NewBillingService(
	invoiceService InvoiceService,
	customerRepo repository.CustomerRepository,
	txnRepo repository.TransactionRepository,
	auditRepo repository.AuditRepository,
	hub *ws.Hub,
) BillingService {
	return &billingService{
		invoiceService: invoiceService,
		customerRepo:   customerRepo,
		txnRepo:        txnRepo,
		auditRepo:      auditRepo,
		hub:            hub,
	}
}

// --- Implementation ---

// RunMonthlyBilling sweeps every active customer for the period. Customers
// with no unbilled activity get a zero-amount NO_ACTIVITY entry and no
// invoice. Each invoice is generated in its own transaction, so a failure
// only loses that customer's invoice and is reported in the result rather
// than aborting the run; invoices already committed stay committed.
func (s *billingService) RunMonthlyBilling(ctx context.Context, req RunBillingRequest) (BatchBillingResult, error) {
	from, to, err := monthBounds(req.Period)
	if err != nil {
		return BatchBillingResult{}, err
	}

	customers, err := s.customerRepo.ListByStatus(ctx, model.CustomerStatusActive)
	if err != nil {
		return BatchBillingResult{}, fmt.Errorf("failed to load active customers: %w", err)
	}

	result := BatchBillingResult{
		Period:             req.Period,
		CustomersProcessed: len(customers),
		Results:            []BatchCustomerResult{},
		Failures:           []BatchFailure{},
	}
	totalAmount := decimal.Zero

	for _, customer := range customers {
		entry := BatchCustomerResult{
			CustomerID:   customer.ID.String(),
			CustomerCode: customer.Code,
			TotalAmount:  "0.00",
		}

		count, err := s.txnRepo.CountUnbilled(ctx, customer.ID, from, to)
		if err == nil && count == 0 {
			entry.Status = BatchStatusNoActivity
			result.Results = append(result.Results, entry)
			continue
		}

		var invoice InvoiceResponse
		if err == nil {
			invoice, err = s.invoiceService.GenerateInvoice(ctx, GenerateInvoiceRequest{
				CustomerID: customer.ID.String(),
				PeriodFrom: from.Format("2006-01-02"),
				PeriodTo:   to.Format("2006-01-02"),
				TaxRate:    req.TaxRate,
			})
		}
		if err != nil {
			log.Printf("WARNING: billing run %s: customer %s failed: %v", req.Period, customer.Code, err)
			entry.Status = BatchStatusFailed
			entry.Error = err.Error()
			result.Results = append(result.Results, entry)
			result.Failed++
			result.Failures = append(result.Failures, BatchFailure{
				CustomerID:   customer.ID.String(),
				CustomerCode: customer.Code,
				Error:        err.Error(),
			})
			s.hub.Publish(ws.EventBatchCustomerDone, map[string]interface{}{
				"period":        req.Period,
				"customer_code": customer.Code,
				"status":        "failed",
			})
			continue
		}

		entry.Status = BatchStatusInvoiced
		entry.InvoiceID = invoice.ID
		entry.InvoiceNo = invoice.InvoiceNo
		entry.TxnCount = len(invoice.Lines)
		entry.TotalAmount = invoice.TotalAmount
		result.Results = append(result.Results, entry)
		result.InvoicesCreated++

		amount, parseErr := decimal.NewFromString(invoice.TotalAmount)
		if parseErr == nil {
			totalAmount = totalAmount.Add(amount)
		}
		s.hub.Publish(ws.EventBatchCustomerDone, map[string]interface{}{
			"period":        req.Period,
			"customer_code": customer.Code,
			"status":        "ok",
			"invoice_no":    invoice.InvoiceNo,
		})
	}

	result.TotalAmount = totalAmount.StringFixed(2)

	detailsJSON, _ := json.Marshal(map[string]interface{}{
		"customers_processed": result.CustomersProcessed,
		"invoices_created":    result.InvoicesCreated,
		"failed":              result.Failed,
		"total_amount":        result.TotalAmount,
	})
	_ = s.auditRepo.Log(ctx, &model.AuditLog{
		Action:     model.ActionRunMonthlyBilling,
		EntityID:   req.Period,
		EntityName: fmt.Sprintf("Billing run %s", req.Period),
		Details:    string(detailsJSON),
	})
	s.hub.Publish(ws.EventBatchCompleted, map[string]interface{}{
		"period":           req.Period,
		"invoices_created": result.InvoicesCreated,
		"failed":           result.Failed,
		"total":            result.TotalAmount,
	})

	return result, nil
}

// GetBillingSummary previews what a billing run for the period would pick
// up, grouped by customer. It reads only; nothing gets claimed.
func (s *billingService) GetBillingSummary(ctx context.Context, period string) (BillingSummary, error) {
	from, to, err := monthBounds(period)
	if err != nil {
		return BillingSummary{}, err
	}

	rows, err := s.txnRepo.SummarizeUnbilled(ctx, from, to)
	if err != nil {
		return BillingSummary{}, fmt.Errorf("failed to scan unbilled activity: %w", err)
	}

	summary := BillingSummary{Period: period, Customers: []BillingSummaryRow{}}
	totalAmount := decimal.Zero
	for _, row := range rows {
		summary.Customers = append(summary.Customers, BillingSummaryRow{
			CustomerID:   row.CustomerID.String(),
			CustomerCode: row.CustomerCode,
			CustomerName: row.CustomerName,
			TxnCount:     row.TxnCount,
			TotalAmount:  row.TotalAmount.StringFixed(2),
		})
		summary.TxnCount += row.TxnCount
		totalAmount = totalAmount.Add(row.TotalAmount)
	}
	summary.TotalAmount = totalAmount.StringFixed(2)
	return summary, nil
}

// monthBounds expands YYYY-MM into the inclusive [first instant, last
// instant] of that calendar month in local time
func monthBounds(period string) (time.Time, time.Time, error) {
	if !billingPeriodPattern.MatchString(period) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period %q (expected YYYY-MM)", period)
	}
	start, err := time.ParseInLocation("2006-01", period, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start, end, nil
}
