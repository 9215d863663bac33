package compliance

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veilpool/compliance/internal/monitoring"
	"github.com/veilpool/compliance/internal/validation"
)

// Handler provides HTTP endpoints for the compliance engine.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new compliance handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up the compliance routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/screen", h.Screen)
	r.POST("/transactions", h.RecordTransaction)
	r.POST("/transactions/flush", h.Flush)
	r.GET("/alerts", h.ListAlerts)
	r.POST("/alerts/:id/status", h.UpdateAlertStatus)
	r.GET("/addresses/:address/transactions", h.AddressHistory)
	r.GET("/addresses/:address/risk-factors", h.RiskFactors)
}

type screenRequest struct {
	Address string `json:"address" binding:"required"`
	Full    bool   `json:"full"` // include the raw assessment
}

// Screen handles POST /v1/screen
func (h *Handler) Screen(c *gin.Context) {
	var req screenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	result := h.engine.CheckEntity(c.Request.Context(), req.Address)
	resp := gin.H{
		"address": req.Address,
		"passed":  result.Passed,
		"score":   result.Score,
	}
	if result.Reason != "" {
		resp["reason"] = result.Reason
	}
	if req.Full {
		resp["assessment"] = h.engine.AssessEntity(c.Request.Context(), req.Address)
	}

	c.JSON(http.StatusOK, resp)
}

// RecordTransaction handles POST /v1/transactions
func (h *Handler) RecordTransaction(c *gin.Context) {
	var in TransactionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("amount", in.Amount),
		validation.Required("asset", in.Asset),
		validation.ValidAmount("amount", in.Amount),
		validation.MaxLength("txId", in.TxID, 128),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"fields":  errs,
		})
		return
	}

	entry, err := h.engine.RecordTransaction(c.Request.Context(), in)
	if err != nil {
		code := "internal_error"
		switch {
		case errors.Is(err, ErrInvalidKind):
			code = "invalid_kind"
		case errors.Is(err, ErrInvalidAmount):
			code = "invalid_amount"
		case errors.Is(err, ErrMissingEntity):
			code = "missing_entity"
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   code,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"transaction": entry,
		"pending":     h.engine.PendingTransactions(),
	})
}

// Flush handles POST /v1/transactions/flush
func (h *Handler) Flush(c *gin.Context) {
	if err := h.engine.Flush(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "flush_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": h.engine.PendingTransactions()})
}

// ListAlerts handles GET /v1/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	filter := monitoring.AlertFilter{Limit: 50}
	if raw := c.Query("severity"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Severities = append(filter.Severities, monitoring.Severity(strings.TrimSpace(s)))
		}
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, monitoring.AlertStatus(strings.TrimSpace(s)))
		}
	}
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed > 0 {
			filter.Offset = parsed
		}
	}

	alerts := h.engine.Alerts(c.Request.Context(), filter)
	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

type alertStatusRequest struct {
	Status monitoring.AlertStatus `json:"status" binding:"required"`
	Notes  string                 `json:"notes"`
}

// UpdateAlertStatus handles POST /v1/alerts/:id/status
func (h *Handler) UpdateAlertStatus(c *gin.Context) {
	id := c.Param("id")

	var req alertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if !monitoring.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "status must be one of open, acknowledged, resolved, false_positive",
		})
		return
	}

	notes := validation.SanitizeString(req.Notes, 2000)

	if !h.engine.UpdateAlertStatus(c.Request.Context(), id, req.Status, notes) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "update_failed",
			"message": "the monitoring service rejected the update",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

// AddressHistory handles GET /v1/addresses/:address/transactions
func (h *Handler) AddressHistory(c *gin.Context) {
	address := c.Param("address")

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.engine.History(c.Request.Context(), address, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":      address,
		"transactions": records,
		"count":        len(records),
	})
}

// RiskFactors handles GET /v1/addresses/:address/risk-factors
func (h *Handler) RiskFactors(c *gin.Context) {
	address := c.Param("address")

	factors, err := h.engine.RiskFactors(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "upstream_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"factors": factors,
	})
}
