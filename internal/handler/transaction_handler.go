package handler

import (
	"net/http"

	"wms/internal/middleware"
	"wms/internal/service"
	"wms/pkg/pagination"
	"wms/pkg/response"

	"github.com/gin-gonic/gin"
)

type TransactionHandler struct {
	txnService service.TransactionService
}

func NewTransactionHandler(txnService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{txnService: txnService}
}

func (h *TransactionHandler) RegisterRoutes(router *gin.RouterGroup) {
	txns := router.Group("/api/transactions")
	{
		txns.POST("", middleware.RequirePermission("transactions.write"), h.CreateTransaction)
		txns.GET("", middleware.RequirePermission("transactions.read"), h.ListTransactions)

		// Event-shaped entry points used by the warehouse modules
		txns.POST("/receipt", middleware.RequirePermission("transactions.write"), h.CreateReceiptTxn)
		txns.POST("/picking", middleware.RequirePermission("transactions.write"), h.CreatePickingTxn)
		txns.POST("/packing", middleware.RequirePermission("transactions.write"), h.CreatePackingTxn)
		txns.POST("/storage", middleware.RequirePermission("transactions.write"), h.CreateStorageTxn)
		txns.POST("/delivery", middleware.RequirePermission("transactions.write"), h.CreateDeliveryTxn)
	}
}

// CreateTransaction records a raw billable event
// @Summary      Record transaction
// @Description  Records a billable event into the unbilled ledger. Pricing failures degrade to a zero-amount UNPRICED entry.
// @Tags         transactions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.BillableEventRequest  true  "Billable Event Payload"
// @Success      201      {object}  response.Response{data=service.TransactionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	var req service.BillableEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	txn, err := h.txnService.CreateTransaction(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, txn))
}

// ListTransactions returns paginated unbilled/billed transactions
// @Summary      List transactions
// @Description  Retrieves transactions, filterable by customer and billed state
// @Tags         transactions
// @Security     BearerAuth
// @Produce      json
// @Param        customer_id  query     string  false  "Filter by customer ID"
// @Param        billed       query     bool    false  "Filter by billed state"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=object}
// @Failure      500          {object}  response.Response
// @Router       /api/transactions [get]
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	params := pagination.Parse(c)

	filter := service.TransactionFilter{
		CustomerID: c.Query("customer_id"),
		Page:       params.Page,
		Limit:      params.Limit,
	}
	if billedParam := c.Query("billed"); billedParam != "" {
		billed := billedParam == "true"
		filter.Billed = &billed
	}

	txns, total, err := h.txnService.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, "transactions", txns, total, params.Page, params.Limit))
}

// CreateReceiptTxn records an inbound receipt charge
// @Summary      Record receipt charge
// @Description  Records a RECEIPT transaction priced by received weight
// @Tags         transactions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.ReceiptEventRequest  true  "Receipt Event Payload"
// @Success      201      {object}  response.Response{data=service.TransactionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/transactions/receipt [post]
func (h *TransactionHandler) CreateReceiptTxn(c *gin.Context) {
	var req service.ReceiptEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	txn, err := h.txnService.CreateReceiptTxn(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, txn))
}

// CreatePickingTxn records a picking charge
// @Summary      Record picking charge
// @Description  Records a PICKING transaction priced by picked quantity
// @Tags         transactions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PickingEventRequest  true  "Picking Event Payload"
// @Success      201      {object}  response.Response{data=service.TransactionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/transactions/picking [post]
func (h *TransactionHandler) CreatePickingTxn(c *gin.Context) {
	var req service.PickingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	txn, err := h.txnService.CreatePickingTxn(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, txn))
}

// CreatePackingTxn records a packing charge
// @Summary      Record packing charge
// @Description  Records a PACKING transaction priced by packed weight
// @Tags         transactions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PackingEventRequest  true  "Packing Event Payload"
// @Success      201      {object}  response.Response{data=service.TransactionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/transactions/packing [post]
func (h *TransactionHandler) CreatePackingTxn(c *gin.Context) {
	var req service.PackingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	txn, err := h.txnService.CreatePackingTxn(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, txn))
}

// CreateStorageTxn records a storage accrual charge
// @Summary      Record storage charge
// @Description  Records a STORAGE transaction priced by volume times days held
// @Tags         transactions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.StorageEventRequest  true  "Storage Event Payload"
// @Success      201      {object}  response.Response{data=service.TransactionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/transactions/storage [post]
func (h *TransactionHandler) CreateStorageTxn(c *gin.Context) {
	var req service.StorageEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	txn, err := h.txnService.CreateStorageTxn(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, txn))
}

// CreateDeliveryTxn records a delivery charge
// @Summary      Record delivery charge
// @Description  Records a DELIVERY transaction priced by distance
// @Tags         transactions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.DeliveryEventRequest  true  "Delivery Event Payload"
// @Success      201      {object}  response.Response{data=service.TransactionResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/transactions/delivery [post]
func (h *TransactionHandler) CreateDeliveryTxn(c *gin.Context) {
	var req service.DeliveryEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	txn, err := h.txnService.CreateDeliveryTxn(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, txn))
}
