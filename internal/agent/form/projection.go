package form

import (
	"github.com/bikorot/auditsync/internal/domain"
)

// ApplyServerSnapshot merges a server-resolved snapshot into the live form
// state. focusedCriterionID names the field the user is typing in right now
// (empty when none); it is threaded in explicitly so the merge is testable
// without any UI environment.
//
// Guards, in order:
//   - a snapshot for a different audit is ignored outright (the user
//     navigated away while the request was in flight);
//   - the focused criterion is never overwritten this pass — the next sync
//     after focus moves away reconciles it;
//   - general fields and answers edited since the last full load keep their
//     local value, flushed or not;
//   - every other answer applies only if the server stamp strictly
//     supersedes the local one.
//
// Returns false when the snapshot was not for this state's audit.
func (s *State) ApplyServerSnapshot(snap domain.AuditSnapshot, focusedCriterionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID != s.auditID {
		return false
	}

	next := make(map[string]any, len(snap.GeneralDetails))
	for k, v := range snap.GeneralDetails {
		next[k] = v
	}
	for field := range s.editedGeneral {
		if local, ok := s.general[field]; ok {
			next[field] = local
		} else {
			delete(next, field)
		}
	}
	s.general = next

	if !s.editedInspectors {
		s.inspectorIDs = append([]string(nil), snap.SelectedInspectorIDs...)
	}

	for _, serverAnswer := range snap.Answers {
		if serverAnswer.CriterionID == focusedCriterionID && focusedCriterionID != "" {
			continue
		}
		if s.editedAnswers[serverAnswer.CriterionID] {
			continue
		}
		local := s.answers[serverAnswer.CriterionID]
		if !domain.SupersedesStamp(serverAnswer.UpdatedAt, local.UpdatedAt) {
			continue
		}
		s.answers[serverAnswer.CriterionID] = AnswerValue{
			Value:     serverAnswer.Value,
			Comment:   serverAnswer.Comment,
			UpdatedAt: serverAnswer.UpdatedAt,
		}
	}
	return true
}
