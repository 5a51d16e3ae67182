package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/bikorot/auditsync/internal/data/repos/audits"
	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/http/response"
	"github.com/bikorot/auditsync/internal/platform/logger"
	"github.com/bikorot/auditsync/internal/reconcile"
)

type AuditHandler struct {
	audits audits.AuditRepo
	log    *logger.Logger
}

func NewAuditHandler(log *logger.Logger, auditRepo audits.AuditRepo) *AuditHandler {
	return &AuditHandler{audits: auditRepo, log: log.With("handler", "AuditHandler")}
}

// Create assigns the permanent server id. The agent rekeys its local "draft"
// records to this id before the next sync cycle.
func (h *AuditHandler) Create(c *gin.Context) {
	var req domain.CreateAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	details := req.GeneralDetails
	if details == nil {
		details = map[string]any{}
	}
	row := &domain.Audit{
		ID:             uuid.New().String(),
		GeneralDetails: datatypes.JSONMap(details),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, id := range req.SelectedInspectorIDs {
		row.Inspectors = append(row.Inspectors, domain.Inspector{ID: id})
	}
	if err := h.audits.Create(c.Request.Context(), nil, row); err != nil {
		h.log.Error("create audit failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, "internal", fmt.Errorf("create audit"))
		return
	}

	h.log.Info("audit created", "audit_id", row.ID)
	response.Created(c, reconcile.Snapshot(row))
}

func (h *AuditHandler) Get(c *gin.Context) {
	id := c.Param("id")
	full, err := h.audits.LoadFull(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("load audit failed", "audit_id", id, "error", err)
		response.Fail(c, http.StatusInternalServerError, "internal", fmt.Errorf("load audit"))
		return
	}
	if full == nil {
		response.Fail(c, http.StatusNotFound, "not_found", fmt.Errorf("audit %s not found", id))
		return
	}
	response.OK(c, reconcile.Snapshot(full))
}

func (h *AuditHandler) List(c *gin.Context) {
	rows, err := h.audits.List(c.Request.Context(), nil)
	if err != nil {
		h.log.Error("list audits failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, "internal", fmt.Errorf("list audits"))
		return
	}
	out := make([]domain.AuditSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, reconcile.Snapshot(row))
	}
	response.OK(c, out)
}

// Delete is the administrative removal path. The sync subsystem never deletes
// records itself; answers cascade with the audit.
func (h *AuditHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.audits.Delete(c.Request.Context(), nil, id); err != nil {
		h.log.Error("delete audit failed", "audit_id", id, "error", err)
		response.Fail(c, http.StatusInternalServerError, "internal", fmt.Errorf("delete audit"))
		return
	}
	h.log.Info("audit deleted", "audit_id", id)
	c.Status(http.StatusNoContent)
}
