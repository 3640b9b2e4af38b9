package earlywarn

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/revlens/revlens/internal/opportunity"
)

// Handler provides HTTP endpoints for early-warning signals.
type Handler struct {
	svc *Service
}

// NewHandler creates a new early-warning handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes sets up early-warning routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/opportunities/:id/warnings", h.List)
	r.POST("/opportunities/:id/warnings/scan", h.Scan)
}

// List handles GET /opportunities/:id/warnings
func (h *Handler) List(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	signals, err := h.svc.Signals(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signals": signals,
		"count":   len(signals),
	})
}

// Scan handles POST /opportunities/:id/warnings/scan — an on-demand sweep of
// one opportunity.
func (h *Handler) Scan(c *gin.Context) {
	signals, err := h.svc.ScanOpportunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, opportunity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Opportunity not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scan_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signals": signals,
		"count":   len(signals),
	})
}
