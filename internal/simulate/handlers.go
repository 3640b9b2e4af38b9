package simulate

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/evaluate"
	"github.com/revlens/revlens/internal/opportunity"
)

// Handler provides HTTP endpoints for what-if simulations.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new simulation handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up simulation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/opportunities/:id/simulate", h.Simulate)
	r.POST("/opportunities/:id/simulate/compare", h.Compare)
}

// Simulate handles POST /opportunities/:id/simulate
func (h *Handler) Simulate(c *gin.Context) {
	var ov Overrides
	if err := c.ShouldBindJSON(&ov); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	result, err := h.engine.Run(c.Request.Context(), c.Param("id"), ov)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type compareRequest struct {
	Scenarios []Overrides `json:"scenarios" binding:"required"`
}

// Compare handles POST /opportunities/:id/simulate/compare
func (h *Handler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	results, err := h.engine.Compare(c.Request.Context(), c.Param("id"), req.Scenarios)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := "simulation_failed"
	switch {
	case errors.Is(err, ErrInvalidScenario):
		status, kind = http.StatusBadRequest, "invalid_scenario"
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
}
