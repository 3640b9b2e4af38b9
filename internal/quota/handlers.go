package quota

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/revlens/revlens/internal/idgen"
	"github.com/revlens/revlens/internal/opportunity"
)

// Handler provides HTTP endpoints for quota management and performance.
type Handler struct {
	store  Store
	engine *Engine
}

// NewHandler creates a new quota handler.
func NewHandler(store Store, engine *Engine) *Handler {
	return &Handler{store: store, engine: engine}
}

// RegisterRoutes sets up quota read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/quotas", h.List)
	r.GET("/quotas/:id", h.Get)
	r.GET("/quotas/:id/performance", h.Performance)
	r.POST("/quotas/rollup", h.Rollup)
}

// RegisterProtectedRoutes sets up quota management routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/quotas", h.Create)
	r.DELETE("/quotas/:id", h.Delete)
}

type createQuotaRequest struct {
	TenantID     string    `json:"tenantId" binding:"required"`
	TargetUserID string    `json:"targetUserId" binding:"required"`
	PeriodStart  time.Time `json:"periodStart" binding:"required"`
	PeriodEnd    time.Time `json:"periodEnd" binding:"required"`
	TargetAmount float64   `json:"targetAmount" binding:"required"`
	Currency     string    `json:"currency"`
	QuotaType    Type      `json:"quotaType"`
}

// Create handles POST /quotas
func (h *Handler) Create(c *gin.Context) {
	var req createQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if req.QuotaType == "" {
		req.QuotaType = TypeRevenue
	}
	q := &Quota{
		ID:           idgen.WithPrefix("quota_"),
		TenantID:     req.TenantID,
		TargetUserID: req.TargetUserID,
		PeriodStart:  req.PeriodStart,
		PeriodEnd:    req.PeriodEnd,
		TargetAmount: req.TargetAmount,
		Currency:     req.Currency,
		QuotaType:    req.QuotaType,
		CreatedAt:    time.Now(),
	}
	if err := h.store.Create(c.Request.Context(), q); err != nil {
		status := http.StatusInternalServerError
		kind := "create_failed"
		if errors.Is(err, ErrInvalidTarget) || errors.Is(err, ErrInvalidPeriod) || errors.Is(err, ErrMissingUser) {
			status, kind = http.StatusBadRequest, "invalid_quota"
		}
		c.JSON(status, gin.H{
			"error":   kind,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, q)
}

// List handles GET /quotas?tenantId=...
func (h *Handler) List(c *gin.Context) {
	tenantID := c.Query("tenantId")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "tenantId query parameter is required",
		})
		return
	}

	quotas, err := h.store.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quotas": quotas,
		"count":  len(quotas),
	})
}

// Get handles GET /quotas/:id
func (h *Handler) Get(c *gin.Context) {
	q, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Quota not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "get_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, q)
}

// Delete handles DELETE /quotas/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Quota not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": err.Error(),
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// Performance handles GET /quotas/:id/performance.
// An optional opportunityIds query restricts the computation to an explicit
// set, which must all close inside the period.
func (h *Handler) Performance(c *gin.Context) {
	ctx := c.Request.Context()
	quotaID := c.Param("id")

	var perf *Performance
	var err error
	if raw := c.Query("opportunityIds"); raw != "" {
		ids := strings.Split(raw, ",")
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
		perf, err = h.engine.PerformanceFor(ctx, quotaID, ids)
	} else {
		perf, err = h.engine.Performance(ctx, quotaID)
	}

	if err != nil {
		status := http.StatusInternalServerError
		kind := "performance_failed"
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, opportunity.ErrNotFound):
			status, kind = http.StatusNotFound, "not_found"
		case errors.Is(err, ErrPeriodMismatch):
			status, kind = http.StatusUnprocessableEntity, "period_mismatch"
		}
		c.JSON(status, gin.H{
			"error":   kind,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, perf)
}

type rollupRequest struct {
	TenantID string   `json:"tenantId" binding:"required"`
	QuotaIDs []string `json:"quotaIds" binding:"required"`
}

// Rollup handles POST /quotas/rollup
func (h *Handler) Rollup(c *gin.Context) {
	var req rollupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	team, err := h.engine.Rollup(c.Request.Context(), req.TenantID, req.QuotaIDs)
	if err != nil {
		status := http.StatusInternalServerError
		kind := "rollup_failed"
		if errors.Is(err, ErrNotFound) {
			status, kind = http.StatusNotFound, "not_found"
		}
		c.JSON(status, gin.H{
			"error":   kind,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, team)
}
