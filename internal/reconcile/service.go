package reconcile

import (
	"context"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/bikorot/auditsync/internal/data/repos/audits"
	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
	"github.com/bikorot/auditsync/internal/realtime"
)

// txBudget bounds one batch. A batch can touch dozens of answers per audit,
// so the budget is generous; every write inside is an idempotent upsert and a
// timed-out batch is safe to retry wholesale.
const txBudget = 20 * time.Second

// Service is the authoritative half of the sync protocol. One Reconcile call
// merges a batch of incoming parent and child mutations under LWW, reprojects
// summary fields, and returns the post-merge state of every audit that
// changed plus every audit the client asked to pull.
type Service struct {
	txr       TxRunner
	audits    audits.AuditRepo
	answers   audits.AnswerRepo
	reference audits.ReferenceRepo
	bus       realtime.Bus
	log       *logger.Logger
	now       func() time.Time
}

func NewService(txr TxRunner, auditRepo audits.AuditRepo, answerRepo audits.AnswerRepo, refRepo audits.ReferenceRepo, bus realtime.Bus, baseLog *logger.Logger) *Service {
	return &Service{
		txr:       txr,
		audits:    auditRepo,
		answers:   answerRepo,
		reference: refRepo,
		bus:       bus,
		log:       baseLog.With("service", "ReconcileService"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the write clock. Tests use it to pin server stamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Reconcile(ctx context.Context, req domain.SyncRequest) ([]domain.AuditSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, txBudget)
	defer cancel()

	started := time.Now()
	changed := make(map[string]bool)
	var snapshots []domain.AuditSnapshot

	err := s.txr.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.mergeAudits(ctx, tx, req.Audits, changed); err != nil {
			return err
		}
		if err := s.mergeAnswers(ctx, tx, req.Answers, changed); err != nil {
			return err
		}
		if err := s.projectSummaries(ctx, tx, changed); err != nil {
			return err
		}
		var err error
		snapshots, err = s.buildResponse(ctx, tx, changed, req.RequestedAuditIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.bus != nil && len(changed) > 0 {
		ids := sortedKeys(changed)
		if err := s.bus.PublishChanged(ctx, ids); err != nil {
			s.log.Warn("publish change event failed", "error", err)
		}
	}

	s.log.Info("reconciled batch",
		"audits_in", len(req.Audits),
		"answers_in", len(req.Answers),
		"pulled", len(req.RequestedAuditIDs),
		"changed", len(changed),
		"returned", len(snapshots),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return snapshots, nil
}

// mergeAudits is the parent pass. An incoming parent applies only when its
// stamp strictly supersedes the stored one; a parent that no longer exists is
// dropped silently.
func (s *Service) mergeAudits(ctx context.Context, tx *gorm.DB, incoming []domain.AuditMutation, changed map[string]bool) error {
	valid := make([]domain.AuditMutation, 0, len(incoming))
	ids := make([]string, 0, len(incoming))
	for _, m := range incoming {
		if m.ID == "" || m.ID == domain.DraftID {
			s.log.Debug("skipping invalid audit mutation", "id", m.ID)
			continue
		}
		valid = append(valid, m)
		ids = append(ids, m.ID)
	}
	if len(valid) == 0 {
		return nil
	}

	stored, err := s.audits.GetStamps(ctx, tx, ids)
	if err != nil {
		return err
	}

	for _, m := range valid {
		existing, ok := stored[m.ID]
		if !ok {
			s.log.Debug("audit vanished, dropping mutation", "audit_id", m.ID)
			continue
		}
		if !domain.Supersedes(domain.ParseStamp(m.LastUpdated), existing) {
			s.log.Debug("conflict skipped: stale audit stamp",
				"audit_id", m.ID, "incoming", m.LastUpdated, "stored", domain.FormatStamp(existing))
			continue
		}

		applied := false
		if m.GeneralDetails != nil {
			if err := s.audits.UpdateDetails(ctx, tx, m.ID, datatypes.JSONMap(m.GeneralDetails), s.now()); err != nil {
				return err
			}
			applied = true
		}
		if m.SelectedInspectorIDs != nil {
			if err := s.audits.ReplaceInspectors(ctx, tx, m.ID, m.SelectedInspectorIDs); err != nil {
				return err
			}
			applied = true
		}
		if applied {
			changed[m.ID] = true
		}
	}
	return nil
}

// mergeAnswers is the child pass: one batched stamp lookup, then per-row LWW
// upserts. A child whose parent changed marks the parent as changed too, so
// summary projection sees it.
func (s *Service) mergeAnswers(ctx context.Context, tx *gorm.DB, incoming []domain.AnswerMutation, changed map[string]bool) error {
	valid := make([]domain.AnswerMutation, 0, len(incoming))
	parentIDs := make(map[string]bool)
	for _, a := range incoming {
		if a.AuditID == "" || a.AuditID == domain.DraftID || a.CriterionID == "" {
			s.log.Debug("skipping invalid answer mutation", "audit_id", a.AuditID, "criterion_id", a.CriterionID)
			continue
		}
		valid = append(valid, a)
		parentIDs[a.AuditID] = true
	}
	if len(valid) == 0 {
		return nil
	}

	parents, err := s.audits.GetStamps(ctx, tx, sortedKeys(parentIDs))
	if err != nil {
		return err
	}

	keys := make([]audits.AnswerKey, 0, len(valid))
	for _, a := range valid {
		keys = append(keys, audits.AnswerKey{AuditID: a.AuditID, CriterionID: a.CriterionID})
	}
	stored, err := s.answers.GetStamps(ctx, tx, keys)
	if err != nil {
		return err
	}

	for _, a := range valid {
		if _, ok := parents[a.AuditID]; !ok {
			s.log.Debug("answer for vanished audit, dropping", "audit_id", a.AuditID, "criterion_id", a.CriterionID)
			continue
		}
		key := audits.AnswerKey{AuditID: a.AuditID, CriterionID: a.CriterionID}
		if !domain.Supersedes(domain.ParseStamp(a.LastUpdated), stored[key]) {
			s.log.Debug("conflict skipped: stale answer stamp",
				"audit_id", a.AuditID, "criterion_id", a.CriterionID,
				"incoming", a.LastUpdated, "stored", domain.FormatStamp(stored[key]))
			continue
		}
		row := &domain.Answer{
			AuditID:     a.AuditID,
			CriterionID: a.CriterionID,
			Value:       a.Value,
			Comment:     a.Comment,
			UpdatedAt:   s.now(),
		}
		if err := s.answers.Upsert(ctx, tx, row); err != nil {
			return err
		}
		changed[a.AuditID] = true
	}
	return nil
}

// buildResponse loads the full current state of every changed and every
// pulled audit. Pulled ids that no longer exist are dropped from the
// response, not errored.
func (s *Service) buildResponse(ctx context.Context, tx *gorm.DB, changed map[string]bool, pull []string) ([]domain.AuditSnapshot, error) {
	ids := make(map[string]bool, len(changed)+len(pull))
	for id := range changed {
		ids[id] = true
	}
	for _, id := range pull {
		if id == "" || id == domain.DraftID {
			continue
		}
		ids[id] = true
	}

	out := make([]domain.AuditSnapshot, 0, len(ids))
	for _, id := range sortedKeys(ids) {
		full, err := s.audits.LoadFull(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if full == nil {
			continue
		}
		out = append(out, Snapshot(full))
	}
	return out, nil
}

// Snapshot serializes an audit with its current stamps into the wire shape.
func Snapshot(a *domain.Audit) domain.AuditSnapshot {
	snap := domain.AuditSnapshot{
		ID:                   a.ID,
		UpdatedAt:            domain.FormatStamp(a.UpdatedAt),
		GeneralDetails:       map[string]any(a.GeneralDetails),
		SelectedInspectorIDs: make([]string, 0, len(a.Inspectors)),
		Answers:              make([]domain.AnswerSnapshot, 0, len(a.Answers)),
	}
	if snap.GeneralDetails == nil {
		snap.GeneralDetails = map[string]any{}
	}
	for _, i := range a.Inspectors {
		snap.SelectedInspectorIDs = append(snap.SelectedInspectorIDs, i.ID)
	}
	for _, ans := range a.Answers {
		snap.Answers = append(snap.Answers, domain.AnswerSnapshot{
			CriterionID: ans.CriterionID,
			Value:       ans.Value,
			Comment:     ans.Comment,
			UpdatedAt:   domain.FormatStamp(ans.UpdatedAt),
		})
	}
	return snap
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
