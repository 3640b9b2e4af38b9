package evaluate

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/revlens/revlens/internal/catalog"
	"github.com/revlens/revlens/internal/opportunity"
)

// Handler provides HTTP endpoints for risk evaluation.
type Handler struct {
	engine   *Engine
	opps     opportunity.Store
	catalogs *catalog.Service
	profiles ProfileStore
}

// NewHandler creates a new evaluation handler.
func NewHandler(engine *Engine, opps opportunity.Store, catalogs *catalog.Service, profiles ProfileStore) *Handler {
	return &Handler{engine: engine, opps: opps, catalogs: catalogs, profiles: profiles}
}

// RegisterRoutes sets up evaluation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/opportunities/:id/evaluate", h.Evaluate)
	r.GET("/opportunities/:id/profiles", h.ListProfiles)
}

// Evaluate handles POST /opportunities/:id/evaluate
func (h *Handler) Evaluate(c *gin.Context) {
	ctx := c.Request.Context()

	snap, err := h.opps.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, opportunity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Opportunity not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "get_failed",
			"message": err.Error(),
		})
		return
	}

	if err := h.catalogs.EnsureSeeded(ctx, snap.TenantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "catalog_failed",
			"message": err.Error(),
		})
		return
	}
	cat, err := h.catalogs.Snapshot(ctx, snap.TenantID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "catalog_unavailable",
			"message": err.Error(),
		})
		return
	}

	profile, err := h.engine.Evaluate(ctx, snap, cat)
	if err != nil {
		status := http.StatusInternalServerError
		kind := "evaluation_failed"
		switch {
		case errors.Is(err, ErrInvalidSnapshot):
			status, kind = http.StatusUnprocessableEntity, "evaluation_input_error"
		case errors.Is(err, ErrCatalogUnavailable):
			status, kind = http.StatusConflict, "catalog_unavailable"
		}
		c.JSON(status, gin.H{
			"error":   kind,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
	})
}

// ListProfiles handles GET /opportunities/:id/profiles
func (h *Handler) ListProfiles(c *gin.Context) {
	limit := 20
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	profiles, err := h.profiles.ListByOpportunity(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profiles": profiles,
		"count":    len(profiles),
	})
}
