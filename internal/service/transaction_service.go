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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- DTOs ---

// BillableEventRequest describes one billable warehouse event. Linkage
// fields are optional references back to the operation that produced it.
type BillableEventRequest struct {
	CustomerID  string                 `json:"customer_id" binding:"required"`
	ServiceType string                 `json:"service_type" binding:"required"`
	Description string                 `json:"description"`
	Quantity    string                 `json:"quantity" binding:"required"`
	UOM         string                 `json:"uom" binding:"required"`
	OccurredAt  string                 `json:"occurred_at"` // RFC3339, defaults to now
	OrderID     string                 `json:"order_id"`
	OrderLineID string                 `json:"order_line_id"`
	WarehouseID string                 `json:"warehouse_id"`
	BinID       string                 `json:"bin_id"`
	ItemID      string                 `json:"item_id"`
	LotID       string                 `json:"lot_id"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// ReceiptEventRequest shapes an inbound receipt into a billable event
type ReceiptEventRequest struct {
	CustomerID  string                 `json:"customer_id" binding:"required"`
	OrderNo     string                 `json:"order_no" binding:"required"`
	WeightKg    string                 `json:"weight_kg" binding:"required"`
	OrderID     string                 `json:"order_id"`
	WarehouseID string                 `json:"warehouse_id"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// PickingEventRequest shapes a completed pick into a billable event
type PickingEventRequest struct {
	CustomerID string                 `json:"customer_id" binding:"required"`
	OrderNo    string                 `json:"order_no" binding:"required"`
	Quantity   string                 `json:"quantity" binding:"required"`
	UOM        string                 `json:"uom"` // defaults to PCS
	OrderID    string                 `json:"order_id"`
	BinID      string                 `json:"bin_id"`
	ItemID     string                 `json:"item_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// PackingEventRequest shapes a completed pack into a billable event
type PackingEventRequest struct {
	CustomerID string                 `json:"customer_id" binding:"required"`
	OrderNo    string                 `json:"order_no" binding:"required"`
	WeightKg   string                 `json:"weight_kg" binding:"required"`
	OrderID    string                 `json:"order_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// StorageEventRequest shapes a storage accrual tick into a billable event.
// Quantity is volume held times days held.
type StorageEventRequest struct {
	CustomerID  string                 `json:"customer_id" binding:"required"`
	VolumeM3    string                 `json:"volume_m3" binding:"required"`
	Days        int64                  `json:"days" binding:"required,gt=0"`
	WarehouseID string                 `json:"warehouse_id"`
	BinID       string                 `json:"bin_id"`
	LotID       string                 `json:"lot_id"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// DeliveryEventRequest shapes a dispatched delivery into a billable event
type DeliveryEventRequest struct {
	CustomerID string                 `json:"customer_id" binding:"required"`
	OrderNo    string                 `json:"order_no" binding:"required"`
	DistanceKm string                 `json:"distance_km" binding:"required"`
	OrderID    string                 `json:"order_id"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type TransactionFilter struct {
	CustomerID string
	Billed     *bool
	Page       int
	Limit      int
}

type TransactionResponse struct {
	ID             string                 `json:"id"`
	CustomerID     string                 `json:"customer_id"`
	ServiceType    string                 `json:"service_type"`
	Description    string                 `json:"description"`
	Quantity       string                 `json:"quantity"`
	UOM            string                 `json:"uom"`
	Rate           string                 `json:"rate"`
	Amount         string                 `json:"amount"`
	PricingStatus  string                 `json:"pricing_status"`
	UnpricedReason string                 `json:"unpriced_reason,omitempty"`
	Billed         bool                   `json:"billed"`
	InvoiceID      *string                `json:"invoice_id"`
	OrderID        *string                `json:"order_id"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt     string                 `json:"occurred_at"`
	CreatedAt      string                 `json:"created_at"`
}

// --- Interface ---

type TransactionService interface {
	CreateTransaction(ctx context.Context, req BillableEventRequest) (TransactionResponse, error)
	CreateReceiptTxn(ctx context.Context, req ReceiptEventRequest) (TransactionResponse, error)
	CreatePickingTxn(ctx context.Context, req PickingEventRequest) (TransactionResponse, error)
	CreatePackingTxn(ctx context.Context, req PackingEventRequest) (TransactionResponse, error)
	CreateStorageTxn(ctx context.Context, req StorageEventRequest) (TransactionResponse, error)
	CreateDeliveryTxn(ctx context.Context, req DeliveryEventRequest) (TransactionResponse, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionResponse, int64, error)
}

type transactionService struct {
	txnRepo      repository.TransactionRepository
	customerRepo repository.CustomerRepository
	rateCardRepo repository.RateCardRepository
	auditRepo    repository.AuditRepository
	hub          *ws.Hub
}

func NewTransactionService(
	txnRepo repository.TransactionRepository,
	customerRepo repository.CustomerRepository,
	rateCardRepo repository.RateCardRepository,
	auditRepo repository.AuditRepository,
	hub *ws.Hub,
) TransactionService {
	return &transactionService{
		txnRepo:      txnRepo,
		customerRepo: customerRepo,
		rateCardRepo: rateCardRepo,
		auditRepo:    auditRepo,
		hub:          hub,
	}
}

// --- Implementation ---

// CreateTransaction logs a billable event into the unbilled ledger.
// Pricing is best-effort: a missing rate card or a tier miss degrades to
// an UNPRICED zero-amount entry instead of failing the warehouse
// operation that produced the event. The pricing_status column keeps
// "legitimately free" distinguishable from "pricing failed" downstream.
func (s *transactionService) CreateTransaction(ctx context.Context, req BillableEventRequest) (TransactionResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return TransactionResponse{}, fmt.Errorf("invalid customer_id: %w", err)
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return TransactionResponse{}, fmt.Errorf("invalid quantity: %w", err)
	}
	if !qty.GreaterThan(decimal.Zero) {
		return TransactionResponse{}, fmt.Errorf("quantity must be positive")
	}

	if _, err := s.customerRepo.FindByID(ctx, customerID); err != nil {
		return TransactionResponse{}, fmt.Errorf("customer not found: %w", err)
	}

	occurredAt := time.Now()
	if req.OccurredAt != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.OccurredAt)
		if parseErr != nil {
			return TransactionResponse{}, fmt.Errorf("invalid occurred_at (expected RFC3339): %w", parseErr)
		}
		occurredAt = parsed
	}

	txn := model.UnbilledTransaction{
		CustomerID:  customerID,
		ServiceType: req.ServiceType,
		Description: req.Description,
		Quantity:    qty,
		UOM:         req.UOM,
		OccurredAt:  occurredAt,
	}
	if len(req.Metadata) > 0 {
		txn.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := applyLinkage(&txn, req); err != nil {
		return TransactionResponse{}, err
	}

	s.price(ctx, &txn)

	if err := s.txnRepo.Create(ctx, &txn); err != nil {
		return TransactionResponse{}, fmt.Errorf("failed to record transaction: %w", err)
	}

	s.writeAuditLog(ctx, model.ActionRecordTransaction, txn.ID.String(),
		fmt.Sprintf("%s %s %s", txn.ServiceType, txn.Quantity, txn.UOM), req)
	s.hub.Publish(ws.EventTransactionCreated, map[string]interface{}{
		"transaction_id": txn.ID.String(),
		"customer_id":    txn.CustomerID.String(),
		"service_type":   txn.ServiceType,
		"amount":         txn.Amount.StringFixed(4),
		"pricing_status": txn.PricingStatus,
	})

	return toTransactionResponse(txn), nil
}

// price fills rate/amount/pricing_status in place
func (s *transactionService) price(ctx context.Context, txn *model.UnbilledTransaction) {
	card, err := s.rateCardRepo.FindActiveByCustomer(ctx, txn.CustomerID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("WARNING: rate card lookup failed for customer %s: %v", txn.CustomerID, err)
		}
		txn.Rate = decimal.Zero
		txn.Amount = decimal.Zero
		txn.PricingStatus = model.PricingStatusUnpriced
		txn.UnpricedReason = "no active rate card"
		return
	}

	res, err := pricing.Calculate(card.Rules, txn.ServiceType, txn.Quantity, txn.UOM)
	if err != nil {
		log.Printf("WARNING: pricing failed for customer %s: %v", txn.CustomerID, err)
		txn.Rate = decimal.Zero
		txn.Amount = decimal.Zero
		txn.PricingStatus = model.PricingStatusUnpriced
		txn.UnpricedReason = "no applicable rate"
		return
	}

	txn.Rate = res.Breakdown.UnitRate
	txn.Amount = res.FinalPrice
	txn.PricingStatus = model.PricingStatusPriced
	txn.UnpricedReason = ""
}

// --- Convenience wrappers, parameter shaping only ---

func (s *transactionService) CreateReceiptTxn(ctx context.Context, req ReceiptEventRequest) (TransactionResponse, error) {
	return s.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  req.CustomerID,
		ServiceType: model.ServiceTypeReceipt,
		Description: fmt.Sprintf("Receiving of order %s", req.OrderNo),
		Quantity:    req.WeightKg,
		UOM:         "kg",
		OrderID:     req.OrderID,
		WarehouseID: req.WarehouseID,
		Metadata:    req.Metadata,
	})
}

func (s *transactionService) CreatePickingTxn(ctx context.Context, req PickingEventRequest) (TransactionResponse, error) {
	uom := req.UOM
	if uom == "" {
		uom = "PCS"
	}
	return s.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  req.CustomerID,
		ServiceType: model.ServiceTypePicking,
		Description: fmt.Sprintf("Picking for order %s", req.OrderNo),
		Quantity:    req.Quantity,
		UOM:         uom,
		OrderID:     req.OrderID,
		BinID:       req.BinID,
		ItemID:      req.ItemID,
		Metadata:    req.Metadata,
	})
}

func (s *transactionService) CreatePackingTxn(ctx context.Context, req PackingEventRequest) (TransactionResponse, error) {
	return s.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  req.CustomerID,
		ServiceType: model.ServiceTypePacking,
		Description: fmt.Sprintf("Packing for order %s", req.OrderNo),
		Quantity:    req.WeightKg,
		UOM:         "kg",
		OrderID:     req.OrderID,
		Metadata:    req.Metadata,
	})
}

func (s *transactionService) CreateStorageTxn(ctx context.Context, req StorageEventRequest) (TransactionResponse, error) {
	volume, err := decimal.NewFromString(req.VolumeM3)
	if err != nil {
		return TransactionResponse{}, fmt.Errorf("invalid volume_m3: %w", err)
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["volume_m3"] = req.VolumeM3
	metadata["storage_days"] = req.Days

	return s.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  req.CustomerID,
		ServiceType: model.ServiceTypeStorage,
		Description: fmt.Sprintf("Storage accrual: %s m3 x %d days", volume.String(), req.Days),
		Quantity:    volume.Mul(decimal.NewFromInt(req.Days)).String(),
		UOM:         "m3",
		WarehouseID: req.WarehouseID,
		BinID:       req.BinID,
		LotID:       req.LotID,
		Metadata:    metadata,
	})
}

func (s *transactionService) CreateDeliveryTxn(ctx context.Context, req DeliveryEventRequest) (TransactionResponse, error) {
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["distance_km"] = req.DistanceKm

	return s.CreateTransaction(ctx, BillableEventRequest{
		CustomerID:  req.CustomerID,
		ServiceType: model.ServiceTypeDelivery,
		Description: fmt.Sprintf("Delivery of order %s", req.OrderNo),
		Quantity:    req.DistanceKm,
		UOM:         "km",
		OrderID:     req.OrderID,
		Metadata:    metadata,
	})
}

func (s *transactionService) ListTransactions(ctx context.Context, filter TransactionFilter) ([]TransactionResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	var customerID *uuid.UUID
	if filter.CustomerID != "" {
		parsed, err := uuid.Parse(filter.CustomerID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid customer_id: %w", err)
		}
		customerID = &parsed
	}

	txns, total, err := s.txnRepo.List(ctx, customerID, filter.Billed, filter.Page, filter.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	result := make([]TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		result = append(result, toTransactionResponse(txn))
	}
	return result, total, nil
}

// --- Helpers ---

func applyLinkage(txn *model.UnbilledTransaction, req BillableEventRequest) error {
	assign := func(field **uuid.UUID, value, name string) error {
		if value == "" {
			return nil
		}
		parsed, err := uuid.Parse(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*field = &parsed
		return nil
	}

	if err := assign(&txn.OrderID, req.OrderID, "order_id"); err != nil {
		return err
	}
	if err := assign(&txn.OrderLineID, req.OrderLineID, "order_line_id"); err != nil {
		return err
	}
	if err := assign(&txn.WarehouseID, req.WarehouseID, "warehouse_id"); err != nil {
		return err
	}
	if err := assign(&txn.BinID, req.BinID, "bin_id"); err != nil {
		return err
	}
	if err := assign(&txn.ItemID, req.ItemID, "item_id"); err != nil {
		return err
	}
	return assign(&txn.LotID, req.LotID, "lot_id")
}

func (s *transactionService) writeAuditLog(ctx context.Context, action, entityID, entityName string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)
	entry := model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	}
	// Best-effort audit log, never fails the operation
	_ = s.auditRepo.Log(ctx, &entry)
}

func toTransactionResponse(txn model.UnbilledTransaction) TransactionResponse {
	resp := TransactionResponse{
		ID:             txn.ID.String(),
		CustomerID:     txn.CustomerID.String(),
		ServiceType:    txn.ServiceType,
		Description:    txn.Description,
		Quantity:       txn.Quantity.StringFixed(4),
		UOM:            txn.UOM,
		Rate:           txn.Rate.StringFixed(4),
		Amount:         txn.Amount.StringFixed(4),
		PricingStatus:  txn.PricingStatus,
		UnpricedReason: txn.UnpricedReason,
		Billed:         txn.Billed,
		OccurredAt:     txn.OccurredAt.Format(time.RFC3339),
		CreatedAt:      txn.CreatedAt.Format(time.RFC3339),
	}
	if txn.InvoiceID != nil {
		v := txn.InvoiceID.String()
		resp.InvoiceID = &v
	}
	if txn.OrderID != nil {
		v := txn.OrderID.String()
		resp.OrderID = &v
	}
	if len(txn.Metadata) > 0 {
		resp.Metadata = map[string]interface{}(txn.Metadata)
	}
	return resp
}
