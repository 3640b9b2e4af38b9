package catalog

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for catalog management.
type Handler struct {
	service *Service
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up read routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/catalog", h.ListDefinitions)
}

// RegisterProtectedRoutes sets up admin routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/catalog", h.CreateDefinition)
	r.PUT("/catalog/:id", h.UpdateDefinition)
	r.DELETE("/catalog/:id", h.RetireDefinition)
}

// ListDefinitions handles GET /catalog?tenantId=...
func (h *Handler) ListDefinitions(c *gin.Context) {
	tenantID := c.Query("tenantId")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_tenant",
			"message": "tenantId query parameter is required",
		})
		return
	}

	if err := h.service.EnsureSeeded(c.Request.Context(), tenantID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "seed_failed",
			"message": err.Error(),
		})
		return
	}

	defs, err := h.service.Store().Active(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"definitions": defs,
		"count":       len(defs),
	})
}

// DefinitionRequest is the create/update payload.
type DefinitionRequest struct {
	TenantID       string  `json:"tenantId"`
	Name           string  `json:"name" binding:"required"`
	Category       string  `json:"category" binding:"required"`
	Weight         float64 `json:"weight"`
	RuleExpression string  `json:"ruleExpression"`
}

// CreateDefinition handles POST /catalog
func (h *Handler) CreateDefinition(c *gin.Context) {
	var req DefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_tenant",
			"message": "tenantId is required",
		})
		return
	}

	def, err := h.service.CreateCustom(c.Request.Context(), req.TenantID, req.Name,
		Category(req.Category), req.Weight, req.RuleExpression)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "create_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"definition": def,
	})
}

// UpdateDefinition handles PUT /catalog/:id
func (h *Handler) UpdateDefinition(c *gin.Context) {
	var req DefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	def, err := h.service.UpdateDefinition(c.Request.Context(), c.Param("id"),
		req.Name, Category(req.Category), req.Weight, req.RuleExpression)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error":   "update_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"definition": def,
	})
}

// RetireDefinition handles DELETE /catalog/:id
func (h *Handler) RetireDefinition(c *gin.Context) {
	if err := h.service.Store().Retire(c.Request.Context(), c.Param("id")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error":   "retire_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Definition retired",
	})
}
