package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/application"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/response"
)

// PaymentHandler handles HTTP requests for payment intents.
type PaymentHandler struct {
	service *application.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes registers all payment routes on the given router group.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup, guard *auth.Guard) {
	intents := r.Group("/payment-intents")
	{
		intents.POST("", auth.RequireScope(guard, auth.ScopePaymentsWrite), h.CreateIntent)
		intents.GET("/:id", auth.RequireScope(guard, auth.ScopePaymentsRead), h.GetIntent)
		intents.POST("/:id/confirm", auth.RequireScope(guard, auth.ScopePaymentsWrite), h.Confirm)
		intents.POST("/:id/settle", auth.RequireScope(guard, auth.ScopePaymentsSettle), h.Settle)
		intents.POST("/:id/refund", auth.RequireScope(guard, auth.ScopePaymentsRefund), h.Refund)
	}

	r.GET("/payments/history", auth.RequireScope(guard, auth.ScopePaymentsRead), h.History)
}

// CreateIntent handles POST /api/v1/payment-intents
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	ac, _ := auth.FromGin(c)

	var req application.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.CreateIntent(c.Request.Context(), ac, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// GetIntent handles GET /api/v1/payment-intents/:id
func (h *PaymentHandler) GetIntent(c *gin.Context) {
	id, ok := intentID(c)
	if !ok {
		return
	}
	ac, _ := auth.FromGin(c)

	dto, err := h.service.GetIntent(c.Request.Context(), ac, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// Confirm handles POST /api/v1/payment-intents/:id/confirm
func (h *PaymentHandler) Confirm(c *gin.Context) {
	id, ok := intentID(c)
	if !ok {
		return
	}
	ac, _ := auth.FromGin(c)

	var req application.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.Confirm(c.Request.Context(), ac, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// Settle handles POST /api/v1/payment-intents/:id/settle
func (h *PaymentHandler) Settle(c *gin.Context) {
	id, ok := intentID(c)
	if !ok {
		return
	}
	ac, _ := auth.FromGin(c)

	dto, err := h.service.Settle(c.Request.Context(), ac, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// Refund handles POST /api/v1/payment-intents/:id/refund. The body is
// optional; without an amount the intent is refunded in full.
func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := intentID(c)
	if !ok {
		return
	}
	ac, _ := auth.FromGin(c)

	var req application.RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	dto, err := h.service.Refund(c.Request.Context(), ac, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

type historyParams struct {
	Status    string `form:"status"`
	GatewayID string `form:"gateway_id"`
	From      string `form:"from"`
	To        string `form:"to"`
	Page      int    `form:"page,default=1" binding:"gte=1"`
	Limit     int    `form:"limit,default=20" binding:"gte=1,lte=100"`
}

// History handles GET /api/v1/payments/history
func (h *PaymentHandler) History(c *gin.Context) {
	ac, _ := auth.FromGin(c)

	var params historyParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	q := application.HistoryQuery{
		Status:    params.Status,
		GatewayID: params.GatewayID,
		Page:      params.Page,
		Limit:     params.Limit,
	}
	var err error
	if q.From, err = parseQueryTime(params.From); err != nil {
		response.BadRequest(c, "from must be an RFC3339 timestamp or a date")
		return
	}
	if q.To, err = parseQueryTime(params.To); err != nil {
		response.BadRequest(c, "to must be an RFC3339 timestamp or a date")
		return
	}

	intents, total, err := h.service.ListHistory(c.Request.Context(), ac, q)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, intents, total, params.Page, params.Limit)
}

func intentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid payment intent ID")
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
