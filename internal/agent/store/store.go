package store

import (
	"context"
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

// Store is the embedded durable store on the agent. Every operation is
// atomic at the single-record level; it never touches the network.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Open opens (or creates) the sqlite store at path. Use ":memory:" for a
// throwaway store.
func Open(path string, baseLog *logger.Logger) (*Store, error) {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := gdb.AutoMigrate(&LocalAudit{}, &LocalAnswer{}); err != nil {
		return nil, storageErr("migrate", err)
	}
	return &Store{db: gdb, log: baseLog.With("component", "LocalStore")}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("close", err)
	}
	return sqlDB.Close()
}

func (s *Store) GetAudit(ctx context.Context, id string) (*LocalAudit, error) {
	var out LocalAudit
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get audit", err)
	}
	return &out, nil
}

// PutAudit is a full-record upsert; there are no partial-field semantics.
func (s *Store) PutAudit(ctx context.Context, row *LocalAudit) error {
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return storageErr("put audit", err)
	}
	return nil
}

func (s *Store) GetAnswer(ctx context.Context, auditID, criterionID string) (*LocalAnswer, error) {
	var out LocalAnswer
	err := s.db.WithContext(ctx).
		Where("audit_id = ? AND criterion_id = ?", auditID, criterionID).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get answer", err)
	}
	return &out, nil
}

func (s *Store) PutAnswer(ctx context.Context, row *LocalAnswer) error {
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return storageErr("put answer", err)
	}
	return nil
}

func (s *Store) DirtyAudits(ctx context.Context) ([]LocalAudit, error) {
	var out []LocalAudit
	if err := s.db.WithContext(ctx).Where("is_dirty = ?", true).Find(&out).Error; err != nil {
		return nil, storageErr("query dirty audits", err)
	}
	return out, nil
}

func (s *Store) DirtyAnswers(ctx context.Context) ([]LocalAnswer, error) {
	var out []LocalAnswer
	if err := s.db.WithContext(ctx).Where("is_dirty = ?", true).Find(&out).Error; err != nil {
		return nil, storageErr("query dirty answers", err)
	}
	return out, nil
}

func (s *Store) AnswersByAudit(ctx context.Context, auditID string) ([]LocalAnswer, error) {
	var out []LocalAnswer
	if err := s.db.WithContext(ctx).Where("audit_id = ?", auditID).Find(&out).Error; err != nil {
		return nil, storageErr("query answers", err)
	}
	return out, nil
}

// ClearAuditDirty drops the dirty flag only when the stored stamp still
// equals the one that was transmitted. A record the user mutated again while
// the request was in flight keeps its flag and goes out next cycle.
func (s *Store) ClearAuditDirty(ctx context.Context, id, sentStamp, syncedAt string) error {
	err := s.db.WithContext(ctx).
		Model(&LocalAudit{}).
		Where("id = ? AND updated_at = ?", id, sentStamp).
		Updates(map[string]any{"is_dirty": false, "last_synced_at": syncedAt}).Error
	if err != nil {
		return storageErr("clear audit dirty", err)
	}
	return nil
}

func (s *Store) ClearAnswerDirty(ctx context.Context, auditID, criterionID, sentStamp, syncedAt string) error {
	err := s.db.WithContext(ctx).
		Model(&LocalAnswer{}).
		Where("audit_id = ? AND criterion_id = ? AND updated_at = ?", auditID, criterionID, sentStamp).
		Updates(map[string]any{"is_dirty": false, "last_synced_at": syncedAt}).Error
	if err != nil {
		return storageErr("clear answer dirty", err)
	}
	return nil
}

// AnswerKey identifies one local answer row.
type AnswerKey struct {
	AuditID     string
	CriterionID string
}

// SentStamps records, per record, the stamp that went out in the current
// sync batch. The server re-stamps accepted writes with its own clock, so a
// returned snapshot can carry a stamp newer than an edit made while the
// batch was in flight; the sent stamp is how ApplySnapshot tells the echo of
// a transmitted record apart from a record mutated since.
type SentStamps struct {
	Audits  map[string]string
	Answers map[AnswerKey]string
}

func (s SentStamps) audit(id string) string {
	if s.Audits == nil {
		return ""
	}
	return s.Audits[id]
}

func (s SentStamps) answer(key AnswerKey) string {
	if s.Answers == nil {
		return ""
	}
	return s.Answers[key]
}

// ApplySnapshot merges a server-resolved audit into the store. A dirty record
// whose stamp is not the one transmitted this cycle is never overwritten: it
// holds an edit the server has not seen, and it stays queued. Every other
// record is overwritten only if the server stamp strictly supersedes the
// local one; applied records come back clean.
func (s *Store) ApplySnapshot(ctx context.Context, snap domain.AuditSnapshot, syncedAt string, sent SentStamps) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var local LocalAudit
		localStamp := ""
		localDirty := false
		err := tx.Where("id = ?", snap.ID).First(&local).Error
		if err == nil {
			localStamp = local.UpdatedAt
			localDirty = local.IsDirty
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if localDirty && localStamp != sent.audit(snap.ID) {
			s.log.Debug("conflict skipped: local audit edited mid-flight", "audit_id", snap.ID,
				"local", localStamp, "sent", sent.audit(snap.ID))
		} else if domain.SupersedesStamp(snap.UpdatedAt, localStamp) {
			row := LocalAudit{
				ID:                 snap.ID,
				GeneralDetailsJSON: encodeJSONMap(snap.GeneralDetails),
				InspectorIDsJSON:   encodeStringList(snap.SelectedInspectorIDs),
				UpdatedAt:          snap.UpdatedAt,
				IsDirty:            false,
				LastSyncedAt:       &syncedAt,
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		} else {
			s.log.Debug("conflict skipped: local audit newer", "audit_id", snap.ID,
				"local", localStamp, "server", snap.UpdatedAt)
		}

		for _, ans := range snap.Answers {
			var existing LocalAnswer
			existingStamp := ""
			existingDirty := false
			err := tx.Where("audit_id = ? AND criterion_id = ?", snap.ID, ans.CriterionID).
				First(&existing).Error
			if err == nil {
				existingStamp = existing.UpdatedAt
				existingDirty = existing.IsDirty
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			key := AnswerKey{AuditID: snap.ID, CriterionID: ans.CriterionID}
			if existingDirty && existingStamp != sent.answer(key) {
				s.log.Debug("conflict skipped: local answer edited mid-flight", "audit_id", snap.ID,
					"criterion_id", ans.CriterionID, "local", existingStamp, "sent", sent.answer(key))
				continue
			}
			if !domain.SupersedesStamp(ans.UpdatedAt, existingStamp) {
				s.log.Debug("conflict skipped: local answer newer", "audit_id", snap.ID,
					"criterion_id", ans.CriterionID, "local", existingStamp, "server", ans.UpdatedAt)
				continue
			}
			row := LocalAnswer{
				AuditID:      snap.ID,
				CriterionID:  ans.CriterionID,
				Value:        ans.Value,
				Comment:      ans.Comment,
				UpdatedAt:    ans.UpdatedAt,
				IsDirty:      false,
				LastSyncedAt: &syncedAt,
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageErr("apply snapshot", err)
	}
	return nil
}

// RekeyDraft moves the "draft" parent and its answers to the permanent id
// the server assigned. No-op when there is no draft row.
func (s *Store) RekeyDraft(ctx context.Context, newID string) error {
	if newID == "" || newID == domain.DraftID {
		return storageErr("rekey draft", errors.New("invalid permanent id"))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&LocalAudit{}).
			Where("id = ?", domain.DraftID).
			Update("id", newID).Error; err != nil {
			return err
		}
		return tx.Model(&LocalAnswer{}).
			Where("audit_id = ?", domain.DraftID).
			Update("audit_id", newID).Error
	})
	if err != nil {
		return storageErr("rekey draft", err)
	}
	return nil
}
