package handler

import (
	"net/http"

	"wms/internal/middleware"
	"wms/internal/service"
	"wms/pkg/response"

	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	billingService service.BillingService
}

func NewBillingHandler(billingService service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

func (h *BillingHandler) RegisterRoutes(router *gin.RouterGroup) {
	billing := router.Group("/api/billing")
	{
		billing.POST("/run", middleware.RequirePermission("billing.run"), h.RunMonthlyBilling)
		billing.GET("/summary", middleware.RequirePermission("billing.read"), h.GetBillingSummary)
	}
}

// RunMonthlyBilling sweeps every active customer for a month
// @Summary      Run monthly billing
// @Description  Sweeps all active customers; generates one invoice per customer with unbilled activity, records a zero-amount result for the rest. Per-customer failures are reported, not fatal.
// @Tags         billing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RunBillingRequest  true  "Run Billing Payload"
// @Success      200      {object}  response.Response{data=service.BatchBillingResult}
// @Failure      400      {object}  response.Response
// @Router       /api/billing/run [post]
func (h *BillingHandler) RunMonthlyBilling(c *gin.Context) {
	var req service.RunBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.billingService.RunMonthlyBilling(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetBillingSummary previews unbilled activity for a period
// @Summary      Billing summary
// @Description  Groups unbilled activity in the period by customer without claiming anything
// @Tags         billing
// @Security     BearerAuth
// @Produce      json
// @Param        period  query     string  true  "Billing period (YYYY-MM)"
// @Success      200     {object}  response.Response{data=service.BillingSummary}
// @Failure      400     {object}  response.Response
// @Router       /api/billing/summary [get]
func (h *BillingHandler) GetBillingSummary(c *gin.Context) {
	period := c.Query("period")
	if period == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "period query parameter is required"))
		return
	}

	summary, err := h.billingService.GetBillingSummary(c.Request.Context(), period)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}
