package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/application"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/auth"
	"github.com/vikash-mehta62/OVHI-FINAL-sub009/internal/platform/response"
)

// DashboardHandler serves analytics snapshots.
type DashboardHandler struct {
	service *application.AnalyticsService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(service *application.AnalyticsService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// RegisterRoutes registers the dashboard route.
func (h *DashboardHandler) RegisterRoutes(r *gin.RouterGroup, guard *auth.Guard) {
	r.GET("/dashboard", auth.RequireScope(guard, auth.ScopeAnalyticsRead), h.Dashboard)
}

// Dashboard handles GET /api/v1/dashboard?timeframe=30d&granularity=week
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ac, _ := auth.FromGin(c)

	snap, err := h.service.Dashboard(c.Request.Context(), ac, c.DefaultQuery("timeframe", "30d"), c.Query("granularity"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, snap)
}
