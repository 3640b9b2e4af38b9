package revenue

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/opportunity"
)

// Handler provides HTTP endpoints for revenue-at-risk figures.
type Handler struct {
	roller *Roller
}

// NewHandler creates a new revenue handler.
func NewHandler(roller *Roller) *Handler {
	return &Handler{roller: roller}
}

// RegisterRoutes sets up revenue routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/opportunities/:id/revenue-at-risk", h.ForOpportunity)
	r.POST("/revenue-at-risk/rollup", h.Rollup)
}

// ForOpportunity handles GET /opportunities/:id/revenue-at-risk
func (h *Handler) ForOpportunity(c *gin.Context) {
	figure, err := h.roller.ForOpportunity(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		kind := "revenue_failed"
		switch {
		case errors.Is(err, opportunity.ErrNotFound):
			status, kind = http.StatusNotFound, "not_found"
		case errors.Is(err, evaluate.ErrInvalidSnapshot):
			status, kind = http.StatusUnprocessableEntity, "evaluation_input_error"
		case errors.Is(err, evaluate.ErrCatalogUnavailable), errors.Is(err, catalog.ErrNoDefinitions):
			status, kind = http.StatusConflict, "catalog_unavailable"
		}
		c.JSON(status, gin.H{
			"error":   kind,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, figure)
}

// Rollup handles POST /revenue-at-risk/rollup
func (h *Handler) Rollup(c *gin.Context) {
	var req RollupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	figure, err := h.roller.Rollup(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		kind := "rollup_failed"
		switch {
		case errors.Is(err, ErrUnknownScope), errors.Is(err, ErrNoMembers):
			status, kind = http.StatusBadRequest, "invalid_scope"
		case errors.Is(err, evaluate.ErrCatalogUnavailable), errors.Is(err, catalog.ErrNoDefinitions):
			status, kind = http.StatusConflict, "catalog_unavailable"
		}
		c.JSON(status, gin.H{
			"error":   kind,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, figure)
}
