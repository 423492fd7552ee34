package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/BruksfildServices01/slot-scheduler/internal/httperr"
	"github.com/BruksfildServices01/slot-scheduler/internal/httpresp"
	"github.com/BruksfildServices01/slot-scheduler/internal/models"
)

// ======================================================
// HANDLER
// ======================================================

type AuditLogsHandler struct {
	db *gorm.DB
}

func NewAuditLogsHandler(db *gorm.DB) *AuditLogsHandler {
	return &AuditLogsHandler{db: db}
}

func (h *AuditLogsHandler) List(c *gin.Context) {
	entityID := c.Query("entity_id")
	action := c.Query("action")
	resource := c.Query("resource")
	fromStr := c.Query("from")
	toStr := c.Query("to")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	offset := (page - 1) * limit

	// --------------------------------------------------
	// Filters
	// --------------------------------------------------

	q := h.db.WithContext(c.Request.Context()).Model(&models.AuditLog{})

	if entityID != "" {
		q = q.Where("entity_id = ?", entityID)
	}

	if action != "" {
		q = q.Where("action = ?", action)
	}

	if resource != "" {
		q = q.Where("resource = ?", resource)
	}

	if fromStr != "" {
		from, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			httperr.BadRequest(c, "invalid_field", "from must be YYYY-MM-DD.")
			return
		}
		q = q.Where("created_at >= ?", from)
	}

	if toStr != "" {
		to, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			httperr.BadRequest(c, "invalid_field", "to must be YYYY-MM-DD.")
			return
		}
		q = q.Where("created_at < ?", to.Add(24*time.Hour))
	}

	// --------------------------------------------------
	// Total
	// --------------------------------------------------

	var total int64
	if err := q.Count(&total).Error; err != nil {
		httperr.Internal(c, "audit_count_failed", "Failed to count audit logs.")
		return
	}

	// --------------------------------------------------
	// Page
	// --------------------------------------------------

	var logs []models.AuditLog
	if err := q.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error; err != nil {

		httperr.Internal(c, "audit_list_failed", "Failed to list audit logs.")
		return
	}

	httpresp.Page(c, logs, page, limit, total)
}
