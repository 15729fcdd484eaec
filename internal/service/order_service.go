package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"wms/internal/model"
	"wms/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// allowed forward transitions; CANCELLED is reachable from anything not
// yet delivered
var orderTransitions = map[string][]string{
	model.OrderStatusDraft:     {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed: {model.OrderStatusPicking, model.OrderStatusCancelled},
	model.OrderStatusPicking:   {model.OrderStatusPacked, model.OrderStatusCancelled},
	model.OrderStatusPacked:    {model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusShipped:   {model.OrderStatusDelivered, model.OrderStatusCancelled},
}

// --- DTOs ---

type OrderLineRequest struct {
	SKU       string `json:"sku" binding:"required"`
	Name      string `json:"name"`
	Quantity  string `json:"quantity" binding:"required"`
	UnitPrice string `json:"unit_price"` // goods price for purchase-for-client orders
	WeightKg  string `json:"weight_kg"`
	VolumeM3  string `json:"volume_m3"`
	ItemID    string `json:"item_id"`
	LotID     string `json:"lot_id"`
}

type CreateOrderRequest struct {
	OrderNo       string             `json:"order_no" binding:"required"`
	CustomerID    string             `json:"customer_id" binding:"required"`
	Type          string             `json:"type" binding:"required,oneof=INBOUND OUTBOUND"`
	OwnershipType string             `json:"ownership_type" binding:"omitempty,oneof=STANDARD PURCHASE_FOR_CLIENT"`
	WarehouseID   string             `json:"warehouse_id"`
	Note          string             `json:"note"`
	Lines         []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type OrderLineResponse struct {
	ID        string `json:"id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	WeightKg  string `json:"weight_kg"`
	VolumeM3  string `json:"volume_m3"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	OrderNo       string              `json:"order_no"`
	CustomerID    string              `json:"customer_id"`
	Type          string              `json:"type"`
	OwnershipType string              `json:"ownership_type"`
	Status        string              `json:"status"`
	Note          string              `json:"note"`
	Lines         []OrderLineResponse `json:"lines,omitempty"`
	DeliveredAt   *string             `json:"delivered_at,omitempty"`
	// set when a delivery transition issued a purchase-for-client invoice
	Invoice   *InvoiceResponse `json:"invoice,omitempty"`
	CreatedAt string           `json:"created_at"`
}

// --- Interface ---

type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (OrderResponse, error)
	UpdateOrderStatus(ctx context.Context, id string, req UpdateOrderStatusRequest) (OrderResponse, error)
	GetOrder(ctx context.Context, id string) (OrderResponse, error)
	ListOrders(ctx context.Context, customerID, status string, page, limit int) ([]OrderResponse, int64, error)
}

type orderService struct {
	orderRepo      repository.OrderRepository
	customerRepo   repository.CustomerRepository
	invoiceService InvoiceService
	auditRepo      repository.AuditRepository
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	customerRepo repository.CustomerRepository,
	invoiceService InvoiceService,
	auditRepo repository.AuditRepository,
) OrderService {
	return &orderService{
		orderRepo:      orderRepo,
		customerRepo:   customerRepo,
		invoiceService: invoiceService,
		auditRepo:      auditRepo,
	}
}

// --- Implementation ---

func (s *orderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (OrderResponse, error) {
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid customer_id: %w", err)
	}
	if _, err := s.customerRepo.FindByID(ctx, customerID); err != nil {
		return OrderResponse{}, fmt.Errorf("customer not found: %w", err)
	}

	ownership := req.OwnershipType
	if ownership == "" {
		ownership = model.OwnershipStandard
	}

	order := model.Order{
		OrderNo:       req.OrderNo,
		CustomerID:    customerID,
		Type:          req.Type,
		OwnershipType: ownership,
		Status:        model.OrderStatusDraft,
		Note:          req.Note,
	}
	if req.WarehouseID != "" {
		warehouseID, err := uuid.Parse(req.WarehouseID)
		if err != nil {
			return OrderResponse{}, fmt.Errorf("invalid warehouse_id: %w", err)
		}
		order.WarehouseID = &warehouseID
	}

	for i, lineReq := range req.Lines {
		line, err := buildOrderLine(lineReq, i)
		if err != nil {
			return OrderResponse{}, err
		}
		order.Lines = append(order.Lines, line)
	}

	if err := s.orderRepo.Create(ctx, &order); err != nil {
		return OrderResponse{}, fmt.Errorf("failed to create order: %w", err)
	}

	s.writeAuditLog(ctx, model.ActionCreateOrder, order.ID.String(), order.OrderNo, req)
	return toOrderResponse(order), nil
}

// UpdateOrderStatus moves an order along its lifecycle. Delivering a
// purchase-for-client order also issues its sales invoice; an invoicing
// failure is logged but does not undo the delivery (the invoice can be
// issued again through the invoice API).
func (s *orderService) UpdateOrderStatus(ctx context.Context, id string, req UpdateOrderStatusRequest) (OrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	order, err := s.orderRepo.FindByIDWithLines(ctx, orderID)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("order not found: %w", err)
	}

	if !transitionAllowed(order.Status, req.Status) {
		return OrderResponse{}, fmt.Errorf("cannot move order %s from %s to %s", order.OrderNo, order.Status, req.Status)
	}

	order.Status = req.Status
	if req.Status == model.OrderStatusDelivered {
		now := time.Now()
		order.DeliveredAt = &now
	}
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return OrderResponse{}, fmt.Errorf("failed to update order: %w", err)
	}

	s.writeAuditLog(ctx, model.ActionUpdateOrderStatus, order.ID.String(), order.OrderNo, req)

	resp := toOrderResponse(*order)
	if req.Status == model.OrderStatusDelivered && order.OwnershipType == model.OwnershipPurchaseForClient {
		invoice, err := s.invoiceService.GeneratePurchaseForClientInvoice(ctx, order.ID.String())
		if err != nil {
			log.Printf("WARNING: order %s delivered but sales invoicing failed: %v", order.OrderNo, err)
		} else {
			resp.Invoice = &invoice
		}
	}
	return resp, nil
}

func (s *orderService) GetOrder(ctx context.Context, id string) (OrderResponse, error) {
	orderID, err := uuid.Parse(id)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("invalid order id: %w", err)
	}
	order, err := s.orderRepo.FindByIDWithLines(ctx, orderID)
	if err != nil {
		return OrderResponse{}, fmt.Errorf("order not found: %w", err)
	}
	return toOrderResponse(*order), nil
}

func (s *orderService) ListOrders(ctx context.Context, customerID, status string, page, limit int) ([]OrderResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var filter *uuid.UUID
	if customerID != "" {
		parsed, err := uuid.Parse(customerID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid customer_id: %w", err)
		}
		filter = &parsed
	}

	orders, total, err := s.orderRepo.List(ctx, filter, status, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}

	result := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	return result, total, nil
}

// --- Helpers ---

func transitionAllowed(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func buildOrderLine(req OrderLineRequest, index int) (model.OrderLine, error) {
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return model.OrderLine{}, fmt.Errorf("line %d: invalid quantity: %w", index, err)
	}
	if !qty.GreaterThan(decimal.Zero) {
		return model.OrderLine{}, fmt.Errorf("line %d: quantity must be positive", index)
	}

	line := model.OrderLine{
		SKU:      req.SKU,
		Name:     req.Name,
		Quantity: qty,
	}

	parseOptional := func(value, name string) (decimal.Decimal, error) {
		if value == "" {
			return decimal.Zero, nil
		}
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("line %d: invalid %s: %w", index, name, err)
		}
		if parsed.IsNegative() {
			return decimal.Zero, fmt.Errorf("line %d: %s must not be negative", index, name)
		}
		return parsed, nil
	}

	if line.UnitPrice, err = parseOptional(req.UnitPrice, "unit_price"); err != nil {
		return model.OrderLine{}, err
	}
	if line.WeightKg, err = parseOptional(req.WeightKg, "weight_kg"); err != nil {
		return model.OrderLine{}, err
	}
	if line.VolumeM3, err = parseOptional(req.VolumeM3, "volume_m3"); err != nil {
		return model.OrderLine{}, err
	}

	if req.ItemID != "" {
		itemID, err := uuid.Parse(req.ItemID)
		if err != nil {
			return model.OrderLine{}, fmt.Errorf("line %d: invalid item_id: %w", index, err)
		}
		line.ItemID = &itemID
	}
	if req.LotID != "" {
		lotID, err := uuid.Parse(req.LotID)
		if err != nil {
			return model.OrderLine{}, fmt.Errorf("line %d: invalid lot_id: %w", index, err)
		}
		line.LotID = &lotID
	}
	return line, nil
}

func (s *orderService) writeAuditLog(ctx context.Context, action, entityID, entityName string, details interface{}) {
	detailsJSON, _ := json.Marshal(details)
	_ = s.auditRepo.Log(ctx, &model.AuditLog{
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(detailsJSON),
	})
}

func toOrderResponse(order model.Order) OrderResponse {
	resp := OrderResponse{
		ID:            order.ID.String(),
		OrderNo:       order.OrderNo,
		CustomerID:    order.CustomerID.String(),
		Type:          order.Type,
		OwnershipType: order.OwnershipType,
		Status:        order.Status,
		Note:          order.Note,
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
	}
	if order.DeliveredAt != nil {
		v := order.DeliveredAt.Format(time.RFC3339)
		resp.DeliveredAt = &v
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, OrderLineResponse{
			ID:        line.ID.String(),
			SKU:       line.SKU,
			Name:      line.Name,
			Quantity:  line.Quantity.StringFixed(4),
			UnitPrice: line.UnitPrice.StringFixed(4),
			WeightKg:  line.WeightKg.StringFixed(4),
			VolumeM3:  line.VolumeM3.StringFixed(4),
		})
	}
	return resp
}
