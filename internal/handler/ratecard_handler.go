package handler

import (
	"net/http"

	"wms/internal/middleware"
	"wms/internal/service"
	"wms/pkg/pagination"
	"wms/pkg/response"

	"github.com/gin-gonic/gin"
)

type RateCardHandler struct {
	rateCardService service.RateCardService
}

func NewRateCardHandler(rateCardService service.RateCardService) *RateCardHandler {
	return &RateCardHandler{rateCardService: rateCardService}
}

func (h *RateCardHandler) RegisterRoutes(router *gin.RouterGroup) {
	cards := router.Group("/api/rate-cards")
	{
		cards.POST("", middleware.RequirePermission("rate_cards.write"), h.CreateRateCard)
		cards.GET("", middleware.RequirePermission("rate_cards.read"), h.ListRateCards)
		cards.GET("/:id", middleware.RequirePermission("rate_cards.read"), h.GetRateCard)
		cards.PUT("/:id", middleware.RequirePermission("rate_cards.write"), h.UpdateRateCard)
		cards.PUT("/:id/activate", middleware.RequirePermission("rate_cards.write"), h.ActivateRateCard)
		cards.DELETE("/:id", middleware.RequirePermission("rate_cards.write"), h.DeleteRateCard)
		cards.POST("/:id/test-price", middleware.RequirePermission("rate_cards.read"), h.TestPrice)
		cards.GET("/:id/service-types", middleware.RequirePermission("rate_cards.read"), h.ListServiceTypes)
		cards.GET("/:id/uoms", middleware.RequirePermission("rate_cards.read"), h.ListUnitsOfMeasure)
	}
}

// CreateRateCard creates a pricing rate card with tier rules
// @Summary      Create rate card
// @Description  Creates a rate card for a customer. Tier overlaps and gaps are returned as warnings.
// @Tags         rate-cards
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateRateCardRequest  true  "Create Rate Card Payload"
// @Success      201      {object}  response.Response{data=service.RateCardResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/rate-cards [post]
func (h *RateCardHandler) CreateRateCard(c *gin.Context) {
	var req service.CreateRateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	card, err := h.rateCardService.CreateRateCard(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, card))
}

// ListRateCards returns a paginated list of rate cards
// @Summary      List rate cards
// @Description  Retrieves rate cards, optionally filtered by customer
// @Tags         rate-cards
// @Security     BearerAuth
// @Produce      json
// @Param        customer_id  query     string  false  "Filter by customer ID"
// @Param        page         query     int     false  "Page number (default 1)"
// @Param        limit        query     int     false  "Number of items per page (default 20)"
// @Success      200          {object}  response.Response{data=object}
// @Failure      500          {object}  response.Response
// @Router       /api/rate-cards [get]
func (h *RateCardHandler) ListRateCards(c *gin.Context) {
	params := pagination.Parse(c)

	cards, total, err := h.rateCardService.ListRateCards(
		c.Request.Context(), c.Query("customer_id"), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, "rate_cards", cards, total, params.Page, params.Limit))
}

// GetRateCard returns one rate card with rules and validation warnings
// @Summary      Get rate card
// @Description  Fetch a rate card by ID including tier rules and overlap/gap warnings
// @Tags         rate-cards
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rate Card ID"
// @Success      200  {object}  response.Response{data=service.RateCardResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/rate-cards/{id} [get]
func (h *RateCardHandler) GetRateCard(c *gin.Context) {
	card, err := h.rateCardService.GetRateCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, card))
}

// UpdateRateCard updates a rate card and optionally replaces its rules
// @Summary      Update rate card
// @Description  Updates card attributes; when rules are present the full rule set is replaced
// @Tags         rate-cards
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                         true  "Rate Card ID"
// @Param        payload  body      service.UpdateRateCardRequest  true  "Update Rate Card Payload"
// @Success      200      {object}  response.Response{data=service.RateCardResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/rate-cards/{id} [put]
func (h *RateCardHandler) UpdateRateCard(c *gin.Context) {
	var req service.UpdateRateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	card, err := h.rateCardService.UpdateRateCard(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, card))
}

// ActivateRateCard makes a card the customer's single active card
// @Summary      Activate rate card
// @Description  Activates the card and deactivates the customer's other cards
// @Tags         rate-cards
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rate Card ID"
// @Success      200  {object}  response.Response{data=service.RateCardResponse}
// @Failure      400  {object}  response.Response
// @Router       /api/rate-cards/{id}/activate [put]
func (h *RateCardHandler) ActivateRateCard(c *gin.Context) {
	card, err := h.rateCardService.ActivateRateCard(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, card))
}

// DeleteRateCard removes a rate card
// @Summary      Delete rate card
// @Description  Deletes a rate card and its rules
// @Tags         rate-cards
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rate Card ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /api/rate-cards/{id} [delete]
func (h *RateCardHandler) DeleteRateCard(c *gin.Context) {
	if err := h.rateCardService.DeleteRateCard(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Rate card deleted successfully"))
}

// TestPrice dry-runs the pricing engine against a card
// @Summary      Test price
// @Description  Computes the charge a quantity would incur under this card without recording anything
// @Tags         rate-cards
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Rate Card ID"
// @Param        payload  body      service.TestPriceRequest  true  "Test Price Payload"
// @Success      200      {object}  response.Response{data=service.TestPriceResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/rate-cards/{id}/test-price [post]
func (h *RateCardHandler) TestPrice(c *gin.Context) {
	var req service.TestPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.rateCardService.TestPrice(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListServiceTypes returns the service types a card can price
// @Summary      List service types
// @Description  Distinct service types covered by the card's active rules
// @Tags         rate-cards
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Rate Card ID"
// @Success      200  {object}  response.Response{data=[]string}
// @Failure      404  {object}  response.Response
// @Router       /api/rate-cards/{id}/service-types [get]
func (h *RateCardHandler) ListServiceTypes(c *gin.Context) {
	types, err := h.rateCardService.ListServiceTypes(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, types))
}

// ListUnitsOfMeasure returns the UOMs a card prices for a service type
// @Summary      List units of measure
// @Description  Distinct UOMs covered by the card's active rules, optionally for one service type
// @Tags         rate-cards
// @Security     BearerAuth
// @Produce      json
// @Param        id            path      string  true   "Rate Card ID"
// @Param        service_type  query     string  false  "Filter by service type"
// @Success      200           {object}  response.Response{data=[]string}
// @Failure      404           {object}  response.Response
// @Router       /api/rate-cards/{id}/uoms [get]
func (h *RateCardHandler) ListUnitsOfMeasure(c *gin.Context) {
	uoms, err := h.rateCardService.ListUnitsOfMeasure(c.Request.Context(), c.Param("id"), c.Query("service_type"))
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, uoms))
}
