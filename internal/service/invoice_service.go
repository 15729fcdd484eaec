package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"wms/internal/model"
	"wms/internal/pricing"
	"wms/internal/repository"
	ws "wms/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrNoUnbilledActivity is returned when invoice generation finds no
// unbilled transactions in the requested period. Callers treat it as a
// client error, not a server fault.
var ErrNoUnbilledActivity = errors.New("no unbilled transactions in period")

// Purchase-for-client invoices carry a fixed goods tax
var purchaseForClientTaxRate = decimal.NewFromInt(15)

// --- DTOs ---

type GenerateInvoiceRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	PeriodFrom string `json:"period_from" binding:"required"` // YYYY-MM-DD
	PeriodTo   string `json:"period_to" binding:"required"`   // YYYY-MM-DD, inclusive
	TaxRate    string `json:"tax_rate"`                       // percent, defaults to 0
	Currency   string `json:"currency"`                       // defaults to USD
}

type RecordPaymentRequest struct {
	Amount    string `json:"amount" binding:"required"`
	Method    string `json:"method" binding:"required,oneof=BANK_TRANSFER CASH CARD"`
	Reference string `json:"reference"`
	PaidAt    string `json:"paid_at"` // RFC3339, defaults to now
}

type InvoiceListRequest struct {
	CustomerID string
	Status     string
	InvoiceNo  string
	Page       int
	Limit      int
}

type InvoiceLineResponse struct {
	ID          string `json:"id"`
	ServiceType string `json:"service_type"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UOM         string `json:"uom"`
	Rate        string `json:"rate"`
	Amount      string `json:"amount"`
}

type PaymentResponse struct {
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
	PaidAt    string `json:"paid_at"`
}

type InvoiceResponse struct {
	ID           string                `json:"id"`
	InvoiceNo    string                `json:"invoice_no"`
	CustomerID   string                `json:"customer_id"`
	CustomerName string                `json:"customer_name,omitempty"`
	PeriodFrom   string                `json:"period_from"`
	PeriodTo     string                `json:"period_to"`
	Currency     string                `json:"currency"`
	Subtotal     string                `json:"subtotal"`
	TaxAmount    string                `json:"tax_amount"`
	TotalAmount  string                `json:"total_amount"`
	Status       string                `json:"status"`
	OrderID      *string               `json:"order_id,omitempty"`
	Lines        []InvoiceLineResponse `json:"lines,omitempty"`
	Payments     []PaymentResponse     `json:"payments,omitempty"`
	CreatedAt    string                `json:"created_at"`
}

// --- Interface ---

type InvoiceService interface {
	GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (InvoiceResponse, error)
	GeneratePurchaseForClientInvoice(ctx context.Context, orderID string) (InvoiceResponse, error)
	RecordPayment(ctx context.Context, invoiceID string, req RecordPaymentRequest) (InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, req InvoiceListRequest) ([]InvoiceResponse, int64, error)
}

type invoiceService struct {
	invoiceRepo  repository.InvoiceRepository
	txnRepo      repository.TransactionRepository
	customerRepo repository.CustomerRepository
	rateCardRepo repository.RateCardRepository
	orderRepo    repository.OrderRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	hub          *ws.Hub
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	txnRepo repository.TransactionRepository,
	customerRepo repository.CustomerRepository,
	rateCardRepo repository.RateCardRepository,
	orderRepo repository.OrderRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:  invoiceRepo,
		txnRepo:      txnRepo,
		customerRepo: customerRepo,
		rateCardRepo: rateCardRepo,
		orderRepo:    orderRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		hub:          hub,
	}
}

// --- Implementation ---

// GenerateInvoice rolls a customer's unbilled transactions in the period
// into one invoice. The whole roll-up runs in a single DB transaction:
// transactions are claimed with a conditional update on billed=false, and
// a claim count that differs from the fetched set (a concurrent run got
// there first) aborts and rolls everything back. UNPRICED transactions get
// one more pricing attempt against the customer's currently active rate
// card before the line is written.
func (s *invoiceService) GenerateInvoice(ctx context.Context, req GenerateInvoiceRequest) (InvoiceResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid customer_id: %w", err)
	}

	// Local days, so the window lines up with the local-time month
	// bounds the batch run computes
	periodFrom, err := time.ParseInLocation("2006-01-02", req.PeriodFrom, time.Local)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid period_from (expected YYYY-MM-DD): %w", err)
	}
	periodTo, err := time.ParseInLocation("2006-01-02", req.PeriodTo, time.Local)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid period_to (expected YYYY-MM-DD): %w", err)
	}
	if periodTo.Before(periodFrom) {
		return InvoiceResponse{}, fmt.Errorf("period_to must not precede period_from")
	}
	// inclusive end of day
	periodToEnd := periodTo.Add(24*time.Hour - time.Millisecond)

	taxRate := decimal.Zero
	if req.TaxRate != "" {
		taxRate, err = decimal.NewFromString(req.TaxRate)
		if err != nil {
			return InvoiceResponse{}, fmt.Errorf("invalid tax_rate: %w", err)
		}
		if taxRate.IsNegative() {
			return InvoiceResponse{}, fmt.Errorf("tax_rate must not be negative")
		}
	}

	customer, err := s.customerRepo.FindByID(ctx, customerID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("customer not found: %w", err)
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		txns, err := s.txnRepo.ListUnbilled(txCtx, customerID, periodFrom, periodToEnd)
		if err != nil {
			return fmt.Errorf("failed to fetch unbilled transactions: %w", err)
		}
		if len(txns) == 0 {
			return ErrNoUnbilledActivity
		}

		s.repriceUnpriced(txCtx, customerID, txns)

		subtotal := decimal.Zero
		for _, txn := range txns {
			subtotal = subtotal.Add(txn.Amount)
		}
		taxAmount := subtotal.Mul(taxRate).Div(decimal.NewFromInt(100)).Round(2)

		invoiceNo, err := s.nextInvoiceNo(txCtx, time.Now())
		if err != nil {
			return err
		}

		invoice = &model.Invoice{
			InvoiceNo:   invoiceNo,
			CustomerID:  customerID,
			PeriodFrom:  periodFrom,
			PeriodTo:    periodTo,
			Currency:    currency,
			Subtotal:    subtotal,
			TaxAmount:   taxAmount,
			TotalAmount: subtotal.Add(taxAmount),
			Status:      model.InvoiceStatusOpen,
		}
		if err := s.invoiceRepo.Create(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		lines := make([]model.InvoiceLine, 0, len(txns))
		ids := make([]uuid.UUID, 0, len(txns))
		for i, txn := range txns {
			lines = append(lines, model.InvoiceLine{
				InvoiceID:   invoice.ID,
				ServiceType: txn.ServiceType,
				Description: lineDescription(txn),
				Quantity:    txn.Quantity,
				UOM:         txn.UOM,
				Rate:        txn.Rate,
				Amount:      txn.Amount,
				SortOrder:   i,
			})
			ids = append(ids, txn.ID)
		}
		if err := s.invoiceRepo.CreateLines(txCtx, lines); err != nil {
			return fmt.Errorf("failed to create invoice lines: %w", err)
		}

		claimed, err := s.txnRepo.MarkBilled(txCtx, ids, invoice.ID)
		if err != nil {
			return fmt.Errorf("failed to mark transactions billed: %w", err)
		}
		if claimed != int64(len(ids)) {
			return fmt.Errorf("concurrent billing detected: claimed %d of %d transactions", claimed, len(ids))
		}
		invoice.Lines = lines
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	s.writeAuditLog(ctx, model.ActionGenerateInvoice, invoice.ID.String(), invoice.InvoiceNo, map[string]interface{}{
		"customer_id": customerID.String(),
		"period_from": req.PeriodFrom,
		"period_to":   req.PeriodTo,
		"total":       invoice.TotalAmount.StringFixed(2),
	})
	s.hub.Publish(ws.EventInvoiceGenerated, map[string]interface{}{
		"invoice_id":  invoice.ID.String(),
		"invoice_no":  invoice.InvoiceNo,
		"customer_id": customerID.String(),
		"total":       invoice.TotalAmount.StringFixed(2),
	})

	invoice.Customer = customer
	return toInvoiceResponse(*invoice), nil
}

// repriceUnpriced gives zero-amount UNPRICED transactions a second pricing
// attempt before they become invoice lines. Entries that still miss every
// tier stay at zero and keep their reason.
func (s *invoiceService) repriceUnpriced(ctx context.Context, customerID uuid.UUID, txns []model.UnbilledTransaction) {
	var card *model.RateCard
	for i := range txns {
		if txns[i].PricingStatus != model.PricingStatusUnpriced {
			continue
		}
		if card == nil {
			found, err := s.rateCardRepo.FindActiveByCustomer(ctx, customerID)
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("WARNING: rate card lookup failed during re-pricing: %v", err)
				}
				return
			}
			card = found
		}

		res, err := pricing.Calculate(card.Rules, txns[i].ServiceType, txns[i].Quantity, txns[i].UOM)
		if err != nil {
			continue
		}
		txns[i].Rate = res.Breakdown.UnitRate
		txns[i].Amount = res.FinalPrice
		txns[i].PricingStatus = model.PricingStatusPriced
		txns[i].UnpricedReason = ""
		if err := s.txnRepo.Update(ctx, &txns[i]); err != nil {
			log.Printf("WARNING: failed to persist re-priced transaction %s: %v", txns[i].ID, err)
		}
	}
}

// GeneratePurchaseForClientInvoice issues a final sales invoice for a
// delivered purchase-for-client order: one SALE line per order line with a
// unit price, plus the handling charges the order incurred, priced off the
// customer's active rate card. Service types the card cannot price are
// skipped rather than failing the whole invoice; the goods lines always
// make it through.
func (s *invoiceService) GeneratePurchaseForClientInvoice(ctx context.Context, orderID string) (InvoiceResponse, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid order id: %w", err)
	}

	order, err := s.orderRepo.FindByIDWithLines(ctx, id)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("order not found: %w", err)
	}
	if order.OwnershipType != model.OwnershipPurchaseForClient {
		return InvoiceResponse{}, fmt.Errorf("order %s is not a purchase-for-client order", order.OrderNo)
	}
	if order.Status != model.OrderStatusDelivered {
		return InvoiceResponse{}, fmt.Errorf("order %s is not delivered yet (status %s)", order.OrderNo, order.Status)
	}

	customer, err := s.customerRepo.FindByID(ctx, order.CustomerID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("customer not found: %w", err)
	}

	card, err := s.rateCardRepo.FindActiveByCustomer(ctx, order.CustomerID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("no active rate card for customer %s: %w", customer.Code, err)
	}

	lines := s.buildSalesLines(order, card)
	if len(lines) == 0 {
		return InvoiceResponse{}, fmt.Errorf("order %s has no billable lines", order.OrderNo)
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Amount)
	}
	taxAmount := subtotal.Mul(purchaseForClientTaxRate).Div(decimal.NewFromInt(100)).Round(2)

	deliveredAt := time.Now()
	if order.DeliveredAt != nil {
		deliveredAt = *order.DeliveredAt
	}

	var invoice *model.Invoice
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoiceNo, err := s.nextInvoiceNo(txCtx, time.Now())
		if err != nil {
			return err
		}

		invoice = &model.Invoice{
			InvoiceNo:   invoiceNo,
			CustomerID:  order.CustomerID,
			PeriodFrom:  deliveredAt,
			PeriodTo:    deliveredAt,
			Currency:    "USD",
			Subtotal:    subtotal,
			TaxAmount:   taxAmount,
			TotalAmount: subtotal.Add(taxAmount),
			Status:      model.InvoiceStatusFinal,
			OrderID:     &order.ID,
		}
		if err := s.invoiceRepo.Create(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		for i := range lines {
			lines[i].InvoiceID = invoice.ID
		}
		if err := s.invoiceRepo.CreateLines(txCtx, lines); err != nil {
			return fmt.Errorf("failed to create invoice lines: %w", err)
		}
		invoice.Lines = lines
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	s.writeAuditLog(ctx, model.ActionGenerateSalesInvoice, invoice.ID.String(), invoice.InvoiceNo, map[string]interface{}{
		"order_id":    order.ID.String(),
		"order_no":    order.OrderNo,
		"customer_id": order.CustomerID.String(),
		"total":       invoice.TotalAmount.StringFixed(2),
	})
	s.hub.Publish(ws.EventInvoiceGenerated, map[string]interface{}{
		"invoice_id":  invoice.ID.String(),
		"invoice_no":  invoice.InvoiceNo,
		"customer_id": order.CustomerID.String(),
		"order_no":    order.OrderNo,
		"total":       invoice.TotalAmount.StringFixed(2),
	})

	invoice.Customer = customer
	return toInvoiceResponse(*invoice), nil
}

// buildSalesLines assembles the goods lines and the handling charges for
// a purchase-for-client order. Handling is priced per order line, so a
// tiered rate or a minimum fee applies to each line on its own.
func (s *invoiceService) buildSalesLines(order *model.Order, card *model.RateCard) []model.InvoiceLine {
	var lines []model.InvoiceLine
	sortOrder := 0

	for _, line := range order.Lines {
		if !line.UnitPrice.GreaterThan(decimal.Zero) {
			continue
		}
		lines = append(lines, model.InvoiceLine{
			ServiceType: model.ServiceTypeSale,
			Description: fmt.Sprintf("%s - %s", line.SKU, line.Name),
			Quantity:    line.Quantity,
			UOM:         "PCS",
			Rate:        line.UnitPrice,
			Amount:      line.UnitPrice.Mul(line.Quantity),
			SortOrder:   sortOrder,
		})
		sortOrder++
	}

	for _, line := range order.Lines {
		weight := line.WeightKg.Mul(line.Quantity)
		volume := line.VolumeM3.Mul(line.Quantity)
		charges := []struct {
			serviceType string
			qty         decimal.Decimal
			uom         string
		}{
			{model.ServiceTypeStorage, volume, "m3"},
			{model.ServiceTypePicking, line.Quantity, "PCS"},
			{model.ServiceTypePacking, weight, "kg"},
			{model.ServiceTypeDelivery, weight, "kg"},
		}
		for _, charge := range charges {
			if !charge.qty.GreaterThan(decimal.Zero) {
				continue
			}
			res, err := pricing.Calculate(card.Rules, charge.serviceType, charge.qty, charge.uom)
			if err != nil {
				log.Printf("WARNING: skipping %s charge for %s on order %s: %v", charge.serviceType, line.SKU, order.OrderNo, err)
				continue
			}
			lines = append(lines, model.InvoiceLine{
				ServiceType: charge.serviceType,
				Description: fmt.Sprintf("%s for %s on order %s", charge.serviceType, line.SKU, order.OrderNo),
				Quantity:    charge.qty,
				UOM:         charge.uom,
				Rate:        res.Breakdown.UnitRate,
				Amount:      res.FinalPrice,
				SortOrder:   sortOrder,
			})
			sortOrder++
		}
	}
	return lines
}

// RecordPayment applies a payment and rolls the invoice status forward.
// OPEN and FINAL invoices move to PARTIAL or PAID depending on the running
// paid total; recording against an invoice that is already PAID is an error.
func (s *invoiceService) RecordPayment(ctx context.Context, invoiceID string, req RecordPaymentRequest) (InvoiceResponse, error) {
	id, err := uuid.Parse(invoiceID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid invoice id: %w", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid amount: %w", err)
	}
	if !amount.GreaterThan(decimal.Zero) {
		return InvoiceResponse{}, fmt.Errorf("amount must be positive")
	}

	paidAt := time.Now()
	if req.PaidAt != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.PaidAt)
		if parseErr != nil {
			return InvoiceResponse{}, fmt.Errorf("invalid paid_at (expected RFC3339): %w", parseErr)
		}
		paidAt = parsed
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, err := s.invoiceRepo.FindByIDWithDetails(txCtx, id)
		if err != nil {
			return fmt.Errorf("invoice not found: %w", err)
		}
		if invoice.Status == model.InvoiceStatusPaid {
			return fmt.Errorf("invoice %s is already paid", invoice.InvoiceNo)
		}

		payment := model.Payment{
			InvoiceID: invoice.ID,
			Amount:    amount,
			Method:    req.Method,
			Reference: req.Reference,
			PaidAt:    paidAt,
		}
		if err := s.invoiceRepo.CreatePayment(txCtx, &payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		paidTotal := amount
		for _, existing := range invoice.Payments {
			paidTotal = paidTotal.Add(existing.Amount)
		}
		if paidTotal.GreaterThanOrEqual(invoice.TotalAmount) {
			invoice.Status = model.InvoiceStatusPaid
		} else {
			invoice.Status = model.InvoiceStatusPartial
		}
		if err := s.invoiceRepo.Update(txCtx, invoice); err != nil {
			return fmt.Errorf("failed to update invoice status: %w", err)
		}
		return nil
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	s.writeAuditLog(ctx, model.ActionRecordPayment, invoiceID, req.Reference, map[string]interface{}{
		"amount": amount.StringFixed(2),
		"method": req.Method,
	})

	return s.GetInvoice(ctx, invoiceID)
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (InvoiceResponse, error) {
	invoiceID, err := uuid.Parse(id)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invalid invoice id: %w", err)
	}
	invoice, err := s.invoiceRepo.FindByIDWithDetails(ctx, invoiceID)
	if err != nil {
		return InvoiceResponse{}, fmt.Errorf("invoice not found: %w", err)
	}
	return toInvoiceResponse(*invoice), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, req InvoiceListRequest) ([]InvoiceResponse, int64, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}

	filter := repository.InvoiceListFilter{
		Status:    req.Status,
		InvoiceNo: req.InvoiceNo,
		Page:      req.Page,
		Limit:     req.Limit,
	}
	if req.CustomerID != "" {
		parsed, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid customer_id: %w", err)
		}
		filter.CustomerID = &parsed
	}

	invoices, total, err := s.invoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		result = append(result, toInvoiceResponse(invoice))
	}
	return result, total, nil
}

// --- Helpers ---

// nextInvoiceNo builds INV-YYYYMM-NNNN off the month's atomic counter.
// Must run inside the generation transaction so a rollback releases the
// sequence bump together with everything else.
func (s *invoiceService) nextInvoiceNo(ctx context.Context, at time.Time) (string, error) {
	yearMonth := at.Format("200601")
	seq, err := s.invoiceRepo.NextSequence(ctx, yearMonth)
	if err != nil {
		return "", fmt.Errorf("failed to allocate invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%s-%04d", yearMonth, seq), nil
}

func lineDescription(txn model.UnbilledTransaction) string {
	return fmt.Sprintf("%s - %s", txn.ServiceType, txn.Description)
}

func (s *invoiceService) writeAuditLog(ctx context.Context, action, entityID, entityName string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)
	entry := model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	}
	_ = s.auditRepo.Log(ctx, &entry)
}

func toInvoiceResponse(invoice model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:          invoice.ID.String(),
		InvoiceNo:   invoice.InvoiceNo,
		CustomerID:  invoice.CustomerID.String(),
		PeriodFrom:  invoice.PeriodFrom.Format("2006-01-02"),
		PeriodTo:    invoice.PeriodTo.Format("2006-01-02"),
		Currency:    invoice.Currency,
		Subtotal:    invoice.Subtotal.StringFixed(2),
		TaxAmount:   invoice.TaxAmount.StringFixed(2),
		TotalAmount: invoice.TotalAmount.StringFixed(2),
		Status:      invoice.Status,
		CreatedAt:   invoice.CreatedAt.Format(time.RFC3339),
	}
	if invoice.Customer != nil {
		resp.CustomerName = invoice.Customer.Name
	}
	if invoice.OrderID != nil {
		v := invoice.OrderID.String()
		resp.OrderID = &v
	}
	for _, line := range invoice.Lines {
		resp.Lines = append(resp.Lines, InvoiceLineResponse{
			ID:          line.ID.String(),
			ServiceType: line.ServiceType,
			Description: line.Description,
			Quantity:    line.Quantity.StringFixed(4),
			UOM:         line.UOM,
			Rate:        line.Rate.StringFixed(4),
			Amount:      line.Amount.StringFixed(2),
		})
	}
	for _, payment := range invoice.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:        payment.ID.String(),
			Amount:    payment.Amount.StringFixed(2),
			Method:    payment.Method,
			Reference: payment.Reference,
			PaidAt:    payment.PaidAt.Format(time.RFC3339),
		})
	}
	return resp
}
