package audits

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

type AuditRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *domain.Audit) error

	GetByID(ctx context.Context, tx *gorm.DB, id string) (*domain.Audit, error)
	GetStamps(ctx context.Context, tx *gorm.DB, ids []string) (map[string]time.Time, error)
	LoadFull(ctx context.Context, tx *gorm.DB, id string) (*domain.Audit, error)
	List(ctx context.Context, tx *gorm.DB) ([]*domain.Audit, error)

	UpdateDetails(ctx context.Context, tx *gorm.DB, id string, details datatypes.JSONMap, at time.Time) error
	MergeDetails(ctx context.Context, tx *gorm.DB, id string, fields map[string]any, at time.Time) error
	ReplaceInspectors(ctx context.Context, tx *gorm.DB, id string, inspectorIDs []string) error

	Delete(ctx context.Context, tx *gorm.DB, id string) error
}

type auditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
	return &auditRepo{db: db, log: baseLog.With("repo", "AuditRepo")}
}

func (r *auditRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *auditRepo) Create(ctx context.Context, tx *gorm.DB, row *domain.Audit) error {
	return r.conn(tx).WithContext(ctx).Create(row).Error
}

func (r *auditRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*domain.Audit, error) {
	var out domain.Audit
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *auditRepo) GetStamps(ctx context.Context, tx *gorm.DB, ids []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID        string
		UpdatedAt time.Time
	}
	err := r.conn(tx).WithContext(ctx).
		Model(&domain.Audit{}).
		Select("id", "updated_at").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.UpdatedAt
	}
	return out, nil
}

func (r *auditRepo) LoadFull(ctx context.Context, tx *gorm.DB, id string) (*domain.Audit, error) {
	var out domain.Audit
	err := r.conn(tx).WithContext(ctx).
		Preload("Inspectors").
		Preload("Answers").
		Where("id = ?", id).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *auditRepo) List(ctx context.Context, tx *gorm.DB) ([]*domain.Audit, error) {
	var out []*domain.Audit
	err := r.conn(tx).WithContext(ctx).
		Order("updated_at DESC").
		Find(&out).Error
	return out, err
}

func (r *auditRepo) UpdateDetails(ctx context.Context, tx *gorm.DB, id string, details datatypes.JSONMap, at time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&domain.Audit{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"general_details": details,
			"updated_at":      at,
		}).Error
}

// MergeDetails overwrites the given keys inside the stored field map without
// touching the rest. Used by summary projection.
func (r *auditRepo) MergeDetails(ctx context.Context, tx *gorm.DB, id string, fields map[string]any, at time.Time) error {
	if len(fields) == 0 {
		return nil
	}
	t := r.conn(tx).WithContext(ctx)
	var row domain.Audit
	if err := t.Where("id = ?", id).First(&row).Error; err != nil {
		return err
	}
	details := row.GeneralDetails
	if details == nil {
		details = datatypes.JSONMap{}
	}
	for k, v := range fields {
		details[k] = v
	}
	return t.Model(&domain.Audit{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"general_details": details,
			"updated_at":      at,
		}).Error
}

func (r *auditRepo) ReplaceInspectors(ctx context.Context, tx *gorm.DB, id string, inspectorIDs []string) error {
	t := r.conn(tx).WithContext(ctx)
	rows := make([]domain.Inspector, 0, len(inspectorIDs))
	for _, iid := range inspectorIDs {
		rows = append(rows, domain.Inspector{ID: iid})
	}
	return t.Model(&domain.Audit{ID: id}).Association("Inspectors").Replace(rows)
}

func (r *auditRepo) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	t := r.conn(tx).WithContext(ctx)
	// Answer rows go with the audit; the join table is cleared through the
	// association so sqlite without FK enforcement stays consistent too.
	if err := t.Where("audit_id = ?", id).Delete(&domain.Answer{}).Error; err != nil {
		return err
	}
	if err := t.Model(&domain.Audit{ID: id}).Association("Inspectors").Clear(); err != nil {
		return err
	}
	return t.Where("id = ?", id).Delete(&domain.Audit{}).Error
}
