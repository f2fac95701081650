package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/application"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/gateway"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/response"
)

// GatewayHandler handles HTTP requests for tenant gateway configuration.
type GatewayHandler struct {
	service *application.GatewayService
}

// NewGatewayHandler creates a new GatewayHandler.
func NewGatewayHandler(service *application.GatewayService) *GatewayHandler {
	return &GatewayHandler{service: service}
}

// RegisterRoutes registers gateway routes.
func (h *GatewayHandler) RegisterRoutes(r *gin.RouterGroup, guard *auth.Guard) {
	gateways := r.Group("/gateways")
	{
		gateways.GET("", auth.RequireScope(guard, auth.ScopeGatewaysRead), h.List)
		gateways.POST("/:gatewayId/configure", auth.RequireScope(guard, auth.ScopeGatewaysWrite), h.Configure)
	}
}

// List handles GET /api/v1/gateways
func (h *GatewayHandler) List(c *gin.Context) {
	ac, _ := auth.FromGin(c)

	cfgs, err := h.service.ListGateways(c.Request.Context(), ac)
	if err != nil {
		response.Error(c, err)
		return
	}
	if cfgs == nil {
		response.Success(c, []any{})
		return
	}

	response.Success(c, cfgs)
}

// Configure handles POST /api/v1/gateways/:gatewayId/configure
func (h *GatewayHandler) Configure(c *gin.Context) {
	ac, _ := auth.FromGin(c)

	var req gateway.ConfigureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	cfg, err := h.service.ConfigureGateway(c.Request.Context(), ac, c.Param("gatewayId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, cfg)
}
