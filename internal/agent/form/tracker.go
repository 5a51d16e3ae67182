package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bikorot/auditsync/internal/agent/store"
	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

// DefaultDebounce is the coalescing window for rapid-fire edits.
const DefaultDebounce = 500 * time.Millisecond

// Tracker turns keystroke-rate edits into coalesced durable writes. There is
// one pending write per field group: the whole general-details block, or one
// criterion. Rescheduling cancels the previous timer, and the record is
// stamped when the write fires, so the last edit in a window owns the stamp.
type Tracker struct {
	mu    sync.Mutex
	st    *store.Store
	state *State
	clock Clock
	log   *logger.Logger
	delay time.Duration

	generalTimer Timer
	answerTimers map[string]Timer
}

type Option func(*Tracker)

func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) { t.delay = d }
}

func NewTracker(st *store.Store, state *State, clock Clock, baseLog *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		st:           st,
		state:        state,
		clock:        clock,
		log:          baseLog.With("component", "MutationTracker"),
		delay:        DefaultDebounce,
		answerTimers: map[string]Timer{},
	}
	for _, opt := range opts {
		opt(t)
	}
	// Keystroke stamps and write stamps must come from the same clock.
	state.now = clock.Now
	return t
}

func (t *Tracker) UpdateGeneralField(field string, value any) {
	t.state.SetGeneralField(field, value)
	t.scheduleGeneral()
}

func (t *Tracker) UpdateInspectors(ids []string) {
	t.state.SetInspectors(ids)
	t.scheduleGeneral()
}

func (t *Tracker) UpdateAnswer(criterionID string, value, comment *string) {
	t.state.SetAnswer(criterionID, value, comment)
	t.scheduleAnswer(criterionID)
}

func (t *Tracker) scheduleGeneral() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.generalTimer != nil {
		t.generalTimer.Stop()
	}
	t.generalTimer = t.clock.AfterFunc(t.delay, func() {
		t.mu.Lock()
		t.generalTimer = nil
		t.mu.Unlock()
		t.writeGeneral(context.Background())
	})
}

func (t *Tracker) scheduleAnswer(criterionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.answerTimers[criterionID]; ok {
		prev.Stop()
	}
	t.answerTimers[criterionID] = t.clock.AfterFunc(t.delay, func() {
		t.mu.Lock()
		delete(t.answerTimers, criterionID)
		t.mu.Unlock()
		t.writeAnswer(context.Background(), criterionID)
	})
}

func (t *Tracker) writeGeneral(ctx context.Context) {
	stamp := domain.FormatStamp(t.clock.Now())
	row := &store.LocalAudit{
		ID:                 t.state.AuditID(),
		GeneralDetailsJSON: store.EncodeJSONMap(t.state.General()),
		InspectorIDsJSON:   store.EncodeStringList(t.state.InspectorIDs()),
		UpdatedAt:          stamp,
		IsDirty:            true,
		LastSyncedAt:       nil,
	}
	if err := t.st.PutAudit(ctx, row); err != nil {
		// Non-fatal: the next debounce retries, in-memory state is intact.
		t.log.Warn("durable write failed", "audit_id", row.ID, "error", err)
	}
}

func (t *Tracker) writeAnswer(ctx context.Context, criterionID string) {
	entry, ok := t.state.Answer(criterionID)
	if !ok {
		return
	}
	stamp := domain.FormatStamp(t.clock.Now())
	row := &store.LocalAnswer{
		AuditID:      t.state.AuditID(),
		CriterionID:  criterionID,
		Value:        entry.Value,
		Comment:      entry.Comment,
		UpdatedAt:    stamp,
		IsDirty:      true,
		LastSyncedAt: nil,
	}
	if err := t.st.PutAnswer(ctx, row); err != nil {
		t.log.Warn("durable write failed", "audit_id", row.AuditID, "criterion_id", criterionID, "error", err)
		return
	}
	t.state.setAnswerStamp(criterionID, stamp)
}

// Flush cancels all pending timers and writes their field groups now. Called
// when the form is being left so no coalesced edit is lost.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	pendingGeneral := t.generalTimer != nil
	if t.generalTimer != nil {
		t.generalTimer.Stop()
		t.generalTimer = nil
	}
	pendingAnswers := make([]string, 0, len(t.answerTimers))
	for id, timer := range t.answerTimers {
		timer.Stop()
		pendingAnswers = append(pendingAnswers, id)
	}
	t.answerTimers = map[string]Timer{}
	t.mu.Unlock()

	var errs []error
	if pendingGeneral {
		stamp := domain.FormatStamp(t.clock.Now())
		row := &store.LocalAudit{
			ID:                 t.state.AuditID(),
			GeneralDetailsJSON: store.EncodeJSONMap(t.state.General()),
			InspectorIDsJSON:   store.EncodeStringList(t.state.InspectorIDs()),
			UpdatedAt:          stamp,
			IsDirty:            true,
		}
		if err := t.st.PutAudit(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range pendingAnswers {
		entry, ok := t.state.Answer(id)
		if !ok {
			continue
		}
		stamp := domain.FormatStamp(t.clock.Now())
		row := &store.LocalAnswer{
			AuditID:     t.state.AuditID(),
			CriterionID: id,
			Value:       entry.Value,
			Comment:     entry.Comment,
			UpdatedAt:   stamp,
			IsDirty:     true,
		}
		if err := t.st.PutAnswer(ctx, row); err != nil {
			errs = append(errs, err)
			continue
		}
		t.state.setAnswerStamp(id, stamp)
	}
	return errors.Join(errs...)
}
