package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grievance-management-api/services"
)

type DashboardController struct {
	dashboard *services.DashboardService
}

func NewDashboardController(dashboard *services.DashboardService) *DashboardController {
	return &DashboardController{dashboard: dashboard}
}

func (dc *DashboardController) Stats(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	stats, err := dc.dashboard.Stats(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (dc *DashboardController) RecentGrievances(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	items, err := dc.dashboard.RecentGrievances(c.Request.Context(), caller, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"grievances": items,
		"total":      len(items),
	})
}

// MonthlyStats ignores an unparseable year and reports the current one.
func (dc *DashboardController) MonthlyStats(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	stats, err := dc.dashboard.MonthlyStats(c.Request.Context(), caller, c.Query("year"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (dc *DashboardController) Performance(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	perf, err := dc.dashboard.Performance(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}
