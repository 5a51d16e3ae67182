package store

// LocalAudit mirrors one parent record in the embedded store. Stamps are kept
// in wire format; IsDirty means "include in the next outgoing batch".
type LocalAudit struct {
	ID                 string  `gorm:"primaryKey"`
	GeneralDetailsJSON string  `gorm:"column:general_details_json;not null;default:''"`
	InspectorIDsJSON   string  `gorm:"column:inspector_ids_json;not null;default:''"`
	UpdatedAt          string  `gorm:"not null;default:''"`
	IsDirty            bool    `gorm:"not null;default:false;index"`
	LastSyncedAt       *string `gorm:""`
}

func (LocalAudit) TableName() string { return "local_audit" }

// LocalAnswer is one child record, unique per (audit, criterion).
type LocalAnswer struct {
	AuditID      string  `gorm:"primaryKey;index"`
	CriterionID  string  `gorm:"primaryKey"`
	Value        *string `gorm:""`
	Comment      *string `gorm:""`
	UpdatedAt    string  `gorm:"not null;default:''"`
	IsDirty      bool    `gorm:"not null;default:false;index"`
	LastSyncedAt *string `gorm:""`
}

func (LocalAnswer) TableName() string { return "local_answer" }
