package audits

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

// ReferenceRepo serves the read-only lookup data: categories with their
// criteria, and the inspector roster. The sync core consults it only for the
// summary-category criteria.
type ReferenceRepo interface {
	Categories(ctx context.Context, tx *gorm.DB) ([]*domain.Category, error)
	CategoryByName(ctx context.Context, tx *gorm.DB, name string) (*domain.Category, error)
	Inspectors(ctx context.Context, tx *gorm.DB) ([]*domain.Inspector, error)
}

type referenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReferenceRepo(db *gorm.DB, baseLog *logger.Logger) ReferenceRepo {
	return &referenceRepo{db: db, log: baseLog.With("repo", "ReferenceRepo")}
}

func (r *referenceRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *referenceRepo) Categories(ctx context.Context, tx *gorm.DB) ([]*domain.Category, error) {
	var out []*domain.Category
	err := r.conn(tx).WithContext(ctx).
		Preload("Criteria", func(db *gorm.DB) *gorm.DB { return db.Order("sort_index") }).
		Order("sort_index").
		Find(&out).Error
	return out, err
}

func (r *referenceRepo) CategoryByName(ctx context.Context, tx *gorm.DB, name string) (*domain.Category, error) {
	var out domain.Category
	err := r.conn(tx).WithContext(ctx).
		Preload("Criteria").
		Where("name = ?", name).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *referenceRepo) Inspectors(ctx context.Context, tx *gorm.DB) ([]*domain.Inspector, error) {
	var out []*domain.Inspector
	err := r.conn(tx).WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}
