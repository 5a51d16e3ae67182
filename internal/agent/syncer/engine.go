package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/bikorot/auditsync/internal/agent/store"
	"github.com/bikorot/auditsync/internal/domain"
	"github.com/bikorot/auditsync/internal/platform/logger"
)

// Status is the sync engine's externally visible state. It drives a
// non-blocking indicator; it never gates user input.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusChecking Status = "checking"
	StatusSyncing  Status = "syncing"
	StatusOffline  Status = "offline"
	StatusSynced   Status = "synced"
	StatusError    Status = "error"
)

// DefaultInterval is the periodic sync cadence.
const DefaultInterval = 30 * time.Second

// Engine drives the reconciliation protocol: gather dirty records, push them
// with their stamps, merge the server's resolved view back under LWW, then
// clear dirty flags only for records the user did not touch mid-flight.
// Failed cycles leave every dirty flag in place, so delivery is at-least-once
// and relies on the server's idempotent upserts.
type Engine struct {
	st     *store.Store
	client *Client
	conn   Connectivity
	log    *logger.Logger

	interval   time.Duration
	pullIDs    func() []string
	onSnapshot func(domain.AuditSnapshot)
	onStatus   func(Status)

	busy sync.Mutex
	kick chan struct{}
	now  func() time.Time
}

type EngineOption func(*Engine)

func WithInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.interval = d }
}

// WithPullIDs supplies the audit ids to request fresh state for even when
// clean, typically the record currently on screen.
func WithPullIDs(fn func() []string) EngineOption {
	return func(e *Engine) { e.pullIDs = fn }
}

// WithSnapshotCallback is invoked for every server-resolved audit after it
// has been merged into the durable store, so live view state can refresh.
func WithSnapshotCallback(fn func(domain.AuditSnapshot)) EngineOption {
	return func(e *Engine) { e.onSnapshot = fn }
}

func WithStatusCallback(fn func(Status)) EngineOption {
	return func(e *Engine) { e.onStatus = fn }
}

func NewEngine(st *store.Store, client *Client, conn Connectivity, baseLog *logger.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		st:       st,
		client:   client,
		conn:     conn,
		log:      baseLog.With("component", "SyncEngine"),
		interval: DefaultInterval,
		kick:     make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one cycle immediately, then re-enters on every interval tick
// and every nudge until the context ends.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.SyncOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SyncOnce(ctx)
		case <-e.kick:
			e.SyncOnce(ctx)
		}
	}
}

// Nudge requests an immediate cycle, e.g. when the change bus announces that
// another client modified an audit. Coalesces if one is already queued.
func (e *Engine) Nudge() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// NotifyOnline is the connectivity-regained trigger.
func (e *Engine) NotifyOnline() {
	e.setStatus(StatusSyncing)
	e.Nudge()
}

func (e *Engine) setStatus(s Status) {
	if e.onStatus != nil {
		e.onStatus(s)
	}
}

// SyncOnce runs a single cycle. Only one cycle runs at a time; an
// overlapping call is skipped, not queued, so the same record set is never
// raced against itself.
func (e *Engine) SyncOnce(ctx context.Context) Status {
	if !e.busy.TryLock() {
		e.log.Debug("sync cycle already running, skipping")
		return StatusSyncing
	}
	defer e.busy.Unlock()

	status := e.runCycle(ctx)
	e.setStatus(status)
	return status
}

func (e *Engine) runCycle(ctx context.Context) Status {
	e.setStatus(StatusChecking)

	if !e.conn.Online(ctx) {
		return StatusOffline
	}

	dirtyAudits, err := e.st.DirtyAudits(ctx)
	if err != nil {
		e.log.Warn("reading dirty audits failed", "error", err)
		return StatusError
	}
	dirtyAnswers, err := e.st.DirtyAnswers(ctx)
	if err != nil {
		e.log.Warn("reading dirty answers failed", "error", err)
		return StatusError
	}

	var pull []string
	if e.pullIDs != nil {
		for _, id := range e.pullIDs() {
			if id != "" && id != domain.DraftID {
				pull = append(pull, id)
			}
		}
	}

	req := domain.SyncRequest{RequestedAuditIDs: pull}
	sent := store.SentStamps{
		Audits:  map[string]string{},
		Answers: map[store.AnswerKey]string{},
	}
	for _, a := range dirtyAudits {
		if a.ID == "" || a.ID == domain.DraftID {
			continue
		}
		req.Audits = append(req.Audits, domain.AuditMutation{
			ID:                   a.ID,
			GeneralDetails:       store.DecodeJSONMap(a.GeneralDetailsJSON, map[string]any{}),
			SelectedInspectorIDs: orEmpty(store.DecodeStringList(a.InspectorIDsJSON)),
			LastUpdated:          a.UpdatedAt,
		})
		sent.Audits[a.ID] = a.UpdatedAt
	}
	for _, a := range dirtyAnswers {
		if a.AuditID == "" || a.AuditID == domain.DraftID {
			continue
		}
		req.Answers = append(req.Answers, domain.AnswerMutation{
			AuditID:     a.AuditID,
			CriterionID: a.CriterionID,
			Value:       a.Value,
			Comment:     a.Comment,
			LastUpdated: a.UpdatedAt,
		})
		sent.Answers[store.AnswerKey{AuditID: a.AuditID, CriterionID: a.CriterionID}] = a.UpdatedAt
	}

	// Nothing dirty and nothing to pull: an idle no-op, no round trip.
	if len(req.Audits) == 0 && len(req.Answers) == 0 && len(pull) == 0 {
		return StatusSynced
	}

	e.setStatus(StatusSyncing)
	e.log.Debug("sending sync batch",
		"audits", len(req.Audits), "answers", len(req.Answers), "pull", len(pull))

	resp, err := e.client.Sync(ctx, req)
	if err != nil {
		// Dirty flags stay set; the next cycle resends the same payload.
		e.log.Warn("sync request failed", "error", err)
		return StatusError
	}
	if !resp.OK {
		e.log.Warn("sync rejected by server", "error", resp.Error)
		return StatusError
	}

	failed := false
	syncedAt := domain.FormatStamp(e.now())
	for _, snap := range resp.Audits {
		if err := e.st.ApplySnapshot(ctx, snap, syncedAt, sent); err != nil {
			e.log.Warn("applying server snapshot failed", "audit_id", snap.ID, "error", err)
			failed = true
			continue
		}
		if e.onSnapshot != nil {
			e.onSnapshot(snap)
		}
	}

	for id, stamp := range sent.Audits {
		if err := e.st.ClearAuditDirty(ctx, id, stamp, syncedAt); err != nil {
			e.log.Warn("clearing audit dirty flag failed", "audit_id", id, "error", err)
			failed = true
		}
	}
	for key, stamp := range sent.Answers {
		if err := e.st.ClearAnswerDirty(ctx, key.AuditID, key.CriterionID, stamp, syncedAt); err != nil {
			e.log.Warn("clearing answer dirty flag failed", "audit_id", key.AuditID, "criterion_id", key.CriterionID, "error", err)
			failed = true
		}
	}

	if failed {
		return StatusError
	}
	return StatusSynced
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
