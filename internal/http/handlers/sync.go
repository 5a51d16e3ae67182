package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
	"github.com/bikorot/auditsync/internal/reconcile"
)

// SyncHandler is the reconciliation entrypoint. Any failure inside the merge
// is converted to the {ok:false, error} shape; nothing beyond the message
// string leaks to the client.
type SyncHandler struct {
	svc *reconcile.Service
	log *logger.Logger
}

func NewSyncHandler(log *logger.Logger, svc *reconcile.Service) *SyncHandler {
	return &SyncHandler{svc: svc, log: log.With("handler", "SyncHandler")}
}

func (h *SyncHandler) Sync(c *gin.Context) {
	var req domain.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("malformed sync request", "error", err)
		c.JSON(http.StatusBadRequest, domain.SyncResponse{OK: false, Error: "malformed request body"})
		return
	}

	snapshots, err := h.svc.Reconcile(c.Request.Context(), req)
	if err != nil {
		h.log.Error("reconcile failed", "error", err)
		c.JSON(http.StatusInternalServerError, domain.SyncResponse{OK: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, domain.SyncResponse{OK: true, Audits: snapshots})
}
