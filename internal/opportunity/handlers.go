package opportunity

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/revlens/revlens/internal/pagination"
)

// Handler provides HTTP endpoints for opportunity snapshots.
type Handler struct {
	store Store
}

// NewHandler creates a new opportunity handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up opportunity routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/opportunities", h.ListOpportunities)
	r.GET("/opportunities/:id", h.GetOpportunity)
	r.GET("/opportunities/:id/revisions", h.GetRevisions)
}

// RegisterProtectedRoutes sets up write routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/opportunities", h.PutOpportunity)
}

// PutOpportunityRequest is the snapshot intake payload.
type PutOpportunityRequest struct {
	ID               string   `json:"id" binding:"required"`
	TenantID         string   `json:"tenantId" binding:"required"`
	Name             string   `json:"name"`
	Value            float64  `json:"value"`
	Currency         string   `json:"currency"`
	ExpectedRevenue  float64  `json:"expectedRevenue"`
	Probability      float64  `json:"probability"`
	Stage            string   `json:"stage" binding:"required"`
	CloseDate        string   `json:"closeDate"` // RFC 3339
	LastActivityAt   string   `json:"lastActivityAt"`
	OwnerID          string   `json:"ownerId" binding:"required"`
	AccountID        string   `json:"accountId"`
	StakeholderIDs   []string `json:"stakeholderIds"`
	ActivityCount30d int      `json:"activityCount30d"`
}

// PutOpportunity handles POST /opportunities
func (h *Handler) PutOpportunity(c *gin.Context) {
	var req PutOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if req.Probability < 0 || req.Probability > 100 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_probability",
			"message": "probability must be between 0 and 100",
		})
		return
	}

	closeDate, err := parseTime(req.CloseDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_close_date",
			"message": "closeDate must be RFC 3339",
		})
		return
	}
	lastActivity, err := parseTime(req.LastActivityAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_last_activity",
			"message": "lastActivityAt must be RFC 3339",
		})
		return
	}

	snap := &Snapshot{
		ID:               req.ID,
		TenantID:         req.TenantID,
		Name:             req.Name,
		Value:            req.Value,
		Currency:         req.Currency,
		ExpectedRevenue:  req.ExpectedRevenue,
		Probability:      req.Probability,
		Stage:            Stage(req.Stage),
		CloseDate:        closeDate,
		LastActivityAt:   lastActivity,
		OwnerID:          req.OwnerID,
		AccountID:        req.AccountID,
		StakeholderIDs:   req.StakeholderIDs,
		ActivityCount30d: req.ActivityCount30d,
		CapturedAt:       time.Now(),
	}

	if err := h.store.Put(c.Request.Context(), snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "put_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"opportunity": snap,
	})
}

// GetOpportunity handles GET /opportunities/:id
func (h *Handler) GetOpportunity(c *gin.Context) {
	snap, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
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

	c.JSON(http.StatusOK, gin.H{
		"opportunity": snap,
		"derived":     snap.DeriveAt(time.Now()),
	})
}

// ListOpportunities handles GET /opportunities
func (h *Handler) ListOpportunities(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	after, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is malformed",
		})
		return
	}

	// Fetch one extra row to learn whether another page exists.
	snaps, err := h.store.List(c.Request.Context(), ListOptions{
		TenantID: c.Query("tenantId"),
		OwnerID:  c.Query("ownerId"),
		Stage:    Stage(c.Query("stage")),
		Limit:    limit + 1,
		After:    after,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	snaps, nextCursor, hasMore := pagination.ComputePage(snaps, limit, func(s *Snapshot) (time.Time, string) {
		return s.CapturedAt, s.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"opportunities": snaps,
		"count":         len(snaps),
		"nextCursor":    nextCursor,
		"hasMore":       hasMore,
	})
}

// GetRevisions handles GET /opportunities/:id/revisions
func (h *Handler) GetRevisions(c *gin.Context) {
	revs, err := h.store.Revisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Opportunity not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "revisions_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"revisions": revs,
		"count":     len(revs),
	})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
