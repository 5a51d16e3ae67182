package form

import (
	"context"
	"sync"
	"time"

	"github.com/bikorot/auditsync/internal/agent/store"
	"github.com/bikorot/auditsync/internal/domain"
)

// AnswerValue is the live value of one criterion in the open form.
type AnswerValue struct {
	Value     *string
	Comment   *string
	UpdatedAt string
}

// State is the in-memory form state for one audit. It is the authoritative
// copy while the form is open; the durable store trails it by at most one
// debounce window. Every edit is marked edited-since-last-load immediately
// and stamped at keystroke time, so a background merge can never clobber an
// edit that has not been flushed yet. The edited sets are cleared only by a
// fresh full load (Hydrate).
type State struct {
	mu  sync.Mutex
	now func() time.Time

	auditID      string
	general      map[string]any
	inspectorIDs []string
	answers      map[string]AnswerValue

	editedGeneral    map[string]bool
	editedAnswers    map[string]bool
	editedInspectors bool
}

func NewState(auditID string, fallbackGeneral map[string]any, fallbackInspectors []string) *State {
	if fallbackGeneral == nil {
		fallbackGeneral = map[string]any{}
	}
	return &State{
		now:           func() time.Time { return time.Now().UTC() },
		auditID:       auditID,
		general:       copyMap(fallbackGeneral),
		inspectorIDs:  append([]string(nil), fallbackInspectors...),
		answers:       map[string]AnswerValue{},
		editedGeneral: map[string]bool{},
		editedAnswers: map[string]bool{},
	}
}

func (s *State) AuditID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auditID
}

func (s *State) SetGeneralField(field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.general[field] = value
	s.editedGeneral[field] = true
}

func (s *State) SetInspectors(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspectorIDs = append([]string(nil), ids...)
	s.editedInspectors = true
}

func (s *State) SetAnswer(criterionID string, value, comment *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[criterionID] = AnswerValue{
		Value:     value,
		Comment:   comment,
		UpdatedAt: domain.FormatStamp(s.now()),
	}
	s.editedAnswers[criterionID] = true
}

func (s *State) setAnswerStamp(criterionID, stamp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.answers[criterionID]
	if !ok {
		return
	}
	entry.UpdatedAt = stamp
	s.answers[criterionID] = entry
}

func (s *State) General() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.general)
}

func (s *State) InspectorIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inspectorIDs...)
}

func (s *State) Answer(criterionID string) (AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[criterionID]
	return v, ok
}

func (s *State) Answers() map[string]AnswerValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]AnswerValue, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

func (s *State) EditedGeneralFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.editedGeneral))
	for f := range s.editedGeneral {
		out = append(out, f)
	}
	return out
}

func (s *State) EditedAnswers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.editedAnswers))
	for id := range s.editedAnswers {
		out = append(out, id)
	}
	return out
}

// Hydrate replaces the live state with the durable store's view of the audit.
// This is the "fresh full load" that clears the edited-field guards, e.g.
// when navigating to a record. The answer set is rebuilt from scratch so
// records that vanished from the store do not linger.
func (s *State) Hydrate(ctx context.Context, st *store.Store) error {
	s.mu.Lock()
	auditID := s.auditID
	fallback := copyMap(s.general)
	s.mu.Unlock()

	audit, err := st.GetAudit(ctx, auditID)
	if err != nil {
		return err
	}
	answers, err := st.AnswersByAudit(ctx, auditID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if audit != nil {
		s.general = store.DecodeJSONMap(audit.GeneralDetailsJSON, fallback)
		if ids := store.DecodeStringList(audit.InspectorIDsJSON); ids != nil {
			s.inspectorIDs = ids
		}
	}
	s.answers = make(map[string]AnswerValue, len(answers))
	for _, row := range answers {
		s.answers[row.CriterionID] = AnswerValue{
			Value:     row.Value,
			Comment:   row.Comment,
			UpdatedAt: row.UpdatedAt,
		}
	}
	s.editedGeneral = map[string]bool{}
	s.editedAnswers = map[string]bool{}
	s.editedInspectors = false
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
