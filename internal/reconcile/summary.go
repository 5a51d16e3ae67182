package reconcile

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/bikorot/auditsync/internal/data/db"
)

// summaryFieldByLabel is the fixed label-to-field mapping: the answers of
// these criteria are projected onto the parent's scalar field map.
var summaryFieldByLabel = map[string]string{
	"הערכת מבקר":  "summaryEvaluation",
	"המלצות מבקר": "recommendations",
	"ציון":        "finalScore",
}

// projectSummaries recomputes the derived summary fields for every parent in
// changed, reading the children as written by the answer pass of the same
// batch. Runs strictly after that pass so it sees the latest values.
func (s *Service) projectSummaries(ctx context.Context, tx *gorm.DB, changed map[string]bool) error {
	if len(changed) == 0 {
		return nil
	}
	cat, err := s.reference.CategoryByName(ctx, tx, db.SummaryCategoryName)
	if err != nil {
		return err
	}
	if cat == nil {
		return nil
	}

	fieldByCriterion := make(map[string]string, len(cat.Criteria))
	criterionIDs := make([]string, 0, len(cat.Criteria))
	for _, c := range cat.Criteria {
		criterionIDs = append(criterionIDs, c.ID)
		if field, ok := summaryFieldByLabel[c.Label]; ok {
			fieldByCriterion[c.ID] = field
		}
	}

	ids := make([]string, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, auditID := range ids {
		rows, err := s.answers.GetByAuditAndCriteria(ctx, tx, auditID, criterionIDs)
		if err != nil {
			return err
		}
		fields := make(map[string]any)
		for _, row := range rows {
			field, ok := fieldByCriterion[row.CriterionID]
			if !ok {
				continue
			}
			if row.Value != nil {
				fields[field] = *row.Value
			} else {
				fields[field] = nil
			}
		}
		if len(fields) == 0 {
			continue
		}
		if err := s.audits.MergeDetails(ctx, tx, auditID, fields, s.now()); err != nil {
			return err
		}
	}
	return nil
}

// SummaryField resolves a criterion label to the parent field it feeds, if
// any. Exposed for the form layer so it can render summary criteria read-only.
func SummaryField(label string) (string, bool) {
	field, ok := summaryFieldByLabel[label]
	return field, ok
}
