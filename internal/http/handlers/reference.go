package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bikorot/auditsync/internal/data/repos/audits"
	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/http/response"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

type ReferenceHandler struct {
	reference audits.ReferenceRepo
	log       *logger.Logger
}

func NewReferenceHandler(log *logger.Logger, refRepo audits.ReferenceRepo) *ReferenceHandler {
	return &ReferenceHandler{reference: refRepo, log: log.With("handler", "ReferenceHandler")}
}

func (h *ReferenceHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	cats, err := h.reference.Categories(ctx, nil)
	if err != nil {
		h.log.Error("load categories failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, "internal", fmt.Errorf("load reference data"))
		return
	}
	inspectors, err := h.reference.Inspectors(ctx, nil)
	if err != nil {
		h.log.Error("load inspectors failed", "error", err)
		response.Fail(c, http.StatusInternalServerError, "internal", fmt.Errorf("load reference data"))
		return
	}

	out := domain.ReferenceData{
		Categories: make([]domain.ReferenceCategory, 0, len(cats)),
		Inspectors: make([]domain.ReferenceInspector, 0, len(inspectors)),
	}
	for _, cat := range cats {
		rc := domain.ReferenceCategory{ID: cat.ID, Name: cat.Name}
		for _, cr := range cat.Criteria {
			rc.Criteria = append(rc.Criteria, domain.ReferenceCriterion{ID: cr.ID, Label: cr.Label, Type: cr.Type})
		}
		out.Categories = append(out.Categories, rc)
	}
	for _, i := range inspectors {
		out.Inspectors = append(out.Inspectors, domain.ReferenceInspector{ID: i.ID, Name: i.Name})
	}
	response.OK(c, out)
}
