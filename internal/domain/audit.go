package domain

import (
	"time"

	"gorm.io/datatypes"
)

// DraftID is the reserved client-side sentinel for an audit that has not been
// created server-side yet. Records keyed by it are excluded from sync.
const DraftID = "draft"

// Audit is the parent record. GeneralDetails is a flat scalar field map; the
// summary fields (summaryEvaluation, recommendations, finalScore) live inside
// it and are overwritten by summary projection, never edited directly.
type Audit struct {
	ID             string            `gorm:"type:uuid;primaryKey" json:"id"`
	GeneralDetails datatypes.JSONMap `gorm:"column:general_details" json:"general_details"`
	Inspectors     []Inspector       `gorm:"many2many:audit_inspectors;constraint:OnDelete:CASCADE" json:"inspectors,omitempty"`
	Answers        []Answer          `gorm:"foreignKey:AuditID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
	Locked         bool              `gorm:"column:locked;not null;default:false" json:"locked"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;index" json:"updated_at"`
}

func (Audit) TableName() string { return "audit" }

// Answer is the child record, one per criterion per audit. The composite
// primary key enforces upsert-only semantics for (audit_id, criterion_id).
type Answer struct {
	AuditID     string    `gorm:"type:uuid;primaryKey" json:"audit_id"`
	CriterionID string    `gorm:"primaryKey" json:"criterion_id"`
	Value       *string   `gorm:"type:text" json:"value"`
	Comment     *string   `gorm:"type:text" json:"comment"`
	UpdatedAt   time.Time `gorm:"not null;index" json:"updated_at"`
}

func (Answer) TableName() string { return "answer" }

type Inspector struct {
	ID   string `gorm:"type:uuid;primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

func (Inspector) TableName() string { return "inspector" }

type Category struct {
	ID        string      `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"not null;uniqueIndex" json:"name"`
	SortIndex int         `gorm:"not null;default:0" json:"sort_index"`
	Criteria  []Criterion `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"criteria,omitempty"`
}

func (Category) TableName() string { return "category" }

type Criterion struct {
	ID         string `gorm:"primaryKey" json:"id"`
	CategoryID string `gorm:"not null;index" json:"category_id"`
	Label      string `gorm:"not null" json:"label"`
	Type       string `gorm:"not null;default:'RADIO'" json:"type"`
	SortIndex  int    `gorm:"not null;default:0" json:"sort_index"`
}

func (Criterion) TableName() string { return "criterion" }
