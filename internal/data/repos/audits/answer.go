package audits

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

// AnswerKey identifies one answer: (parent, criterion) is unique.
type AnswerKey struct {
	AuditID     string
	CriterionID string
}

type AnswerRepo interface {
	GetByAudit(ctx context.Context, tx *gorm.DB, auditID string) ([]*domain.Answer, error)
	GetByAuditAndCriteria(ctx context.Context, tx *gorm.DB, auditID string, criterionIDs []string) ([]*domain.Answer, error)

	// GetStamps resolves stored timestamps for a batch of keys in one query.
	GetStamps(ctx context.Context, tx *gorm.DB, keys []AnswerKey) (map[AnswerKey]time.Time, error)

	Upsert(ctx context.Context, tx *gorm.DB, row *domain.Answer) error
}

type answerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, baseLog *logger.Logger) AnswerRepo {
	return &answerRepo{db: db, log: baseLog.With("repo", "AnswerRepo")}
}

func (r *answerRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *answerRepo) GetByAudit(ctx context.Context, tx *gorm.DB, auditID string) ([]*domain.Answer, error) {
	var out []*domain.Answer
	err := r.conn(tx).WithContext(ctx).
		Where("audit_id = ?", auditID).
		Find(&out).Error
	return out, err
}

func (r *answerRepo) GetByAuditAndCriteria(ctx context.Context, tx *gorm.DB, auditID string, criterionIDs []string) ([]*domain.Answer, error) {
	var out []*domain.Answer
	if len(criterionIDs) == 0 {
		return out, nil
	}
	err := r.conn(tx).WithContext(ctx).
		Where("audit_id = ? AND criterion_id IN ?", auditID, criterionIDs).
		Find(&out).Error
	return out, err
}

func (r *answerRepo) GetStamps(ctx context.Context, tx *gorm.DB, keys []AnswerKey) (map[AnswerKey]time.Time, error) {
	out := make(map[AnswerKey]time.Time, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	pairs := make([][]any, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, []any{k.AuditID, k.CriterionID})
	}
	var rows []domain.Answer
	err := r.conn(tx).WithContext(ctx).
		Select("audit_id", "criterion_id", "updated_at").
		Where("(audit_id, criterion_id) IN ?", pairs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[AnswerKey{AuditID: row.AuditID, CriterionID: row.CriterionID}] = row.UpdatedAt
	}
	return out, nil
}

// Upsert inserts or overwrites the (audit_id, criterion_id) row. Duplicate
// delivery of the same batch converges on the same final row.
func (r *answerRepo) Upsert(ctx context.Context, tx *gorm.DB, row *domain.Answer) error {
	return r.conn(tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "audit_id"}, {Name: "criterion_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"comment",
			"updated_at",
		}),
	}).Create(row).Error
}
