package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bikorot/auditsync/internal/agent/store"
	"github.com/bikorot/auditsync/internal/data/repos/testutil"
	"github.com/bikorot/auditsync/internal/domain"
)

var localT0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "agent.db"), testutil.Logger(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func stamp(offset time.Duration) string {
	return domain.FormatStamp(localT0.Add(offset))
}

func TestStoreAuditRoundTrip(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	row := &store.LocalAudit{
		ID:                 "a1",
		GeneralDetailsJSON: store.EncodeJSONMap(map[string]any{"base": "unit-7"}),
		InspectorIDsJSON:   store.EncodeStringList([]string{"i1"}),
		UpdatedAt:          stamp(0),
		IsDirty:            true,
	}
	if err := st.PutAudit(ctx, row); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := st.GetAudit(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected audit, got nil")
	}
	if got.UpdatedAt != stamp(0) || !got.IsDirty {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	details := store.DecodeJSONMap(got.GeneralDetailsJSON, nil)
	if details["base"] != "unit-7" {
		t.Fatalf("details = %v", details)
	}

	missing, err := st.GetAudit(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing audit, got %+v", missing)
	}
}

func TestStoreDirtyQueries(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	for _, row := range []*store.LocalAudit{
		{ID: "dirty", UpdatedAt: stamp(0), IsDirty: true},
		{ID: "clean", UpdatedAt: stamp(0), IsDirty: false},
	} {
		if err := st.PutAudit(ctx, row); err != nil {
			t.Fatalf("put %s: %v", row.ID, err)
		}
	}
	for _, row := range []*store.LocalAnswer{
		{AuditID: "dirty", CriterionID: "c1", UpdatedAt: stamp(0), IsDirty: true},
		{AuditID: "dirty", CriterionID: "c2", UpdatedAt: stamp(0), IsDirty: false},
	} {
		if err := st.PutAnswer(ctx, row); err != nil {
			t.Fatalf("put answer %s: %v", row.CriterionID, err)
		}
	}

	dirtyAudits, err := st.DirtyAudits(ctx)
	if err != nil {
		t.Fatalf("dirty audits: %v", err)
	}
	if len(dirtyAudits) != 1 || dirtyAudits[0].ID != "dirty" {
		t.Fatalf("dirty audits = %+v, want only 'dirty'", dirtyAudits)
	}

	dirtyAnswers, err := st.DirtyAnswers(ctx)
	if err != nil {
		t.Fatalf("dirty answers: %v", err)
	}
	if len(dirtyAnswers) != 1 || dirtyAnswers[0].CriterionID != "c1" {
		t.Fatalf("dirty answers = %+v, want only c1", dirtyAnswers)
	}
}

// Dirty flags clear only when the stored stamp still matches the transmitted
// one; a record edited mid-flight stays queued.
func TestStoreClearDirtyGuardsOnStamp(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	syncedAt := stamp(time.Minute)

	if err := st.PutAudit(ctx, &store.LocalAudit{ID: "a1", UpdatedAt: stamp(0), IsDirty: true}); err != nil {
		t.Fatalf("put audit: %v", err)
	}
	if err := st.PutAnswer(ctx, &store.LocalAnswer{AuditID: "a1", CriterionID: "c1", UpdatedAt: stamp(0), IsDirty: true}); err != nil {
		t.Fatalf("put answer: %v", err)
	}

	// Simulate a mutation landing while the audit's batch was in flight.
	if err := st.PutAudit(ctx, &store.LocalAudit{ID: "a1", UpdatedAt: stamp(30 * time.Second), IsDirty: true}); err != nil {
		t.Fatalf("re-put audit: %v", err)
	}

	if err := st.ClearAuditDirty(ctx, "a1", stamp(0), syncedAt); err != nil {
		t.Fatalf("clear audit dirty: %v", err)
	}
	if err := st.ClearAnswerDirty(ctx, "a1", "c1", stamp(0), syncedAt); err != nil {
		t.Fatalf("clear answer dirty: %v", err)
	}

	audit, err := st.GetAudit(ctx, "a1")
	if err != nil {
		t.Fatalf("get audit: %v", err)
	}
	if !audit.IsDirty {
		t.Fatal("mid-flight mutation lost its dirty flag")
	}

	answer, err := st.GetAnswer(ctx, "a1", "c1")
	if err != nil {
		t.Fatalf("get answer: %v", err)
	}
	if answer.IsDirty {
		t.Fatal("answer with matching stamp kept its dirty flag")
	}
	if answer.LastSyncedAt == nil || *answer.LastSyncedAt != syncedAt {
		t.Fatalf("last_synced_at = %v, want %s", answer.LastSyncedAt, syncedAt)
	}
}

func TestStoreApplySnapshotLWW(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	syncedAt := stamp(2 * time.Hour)

	if err := st.PutAudit(ctx, &store.LocalAudit{
		ID:                 "a1",
		GeneralDetailsJSON: store.EncodeJSONMap(map[string]any{"base": "local"}),
		UpdatedAt:          stamp(time.Hour),
	}); err != nil {
		t.Fatalf("put audit: %v", err)
	}
	for _, row := range []*store.LocalAnswer{
		{AuditID: "a1", CriterionID: "newer-local", Value: testutil.PtrString("local"), UpdatedAt: stamp(time.Hour)},
		{AuditID: "a1", CriterionID: "tied", Value: testutil.PtrString("local"), UpdatedAt: stamp(0)},
		{AuditID: "a1", CriterionID: "older-local", Value: testutil.PtrString("local"), UpdatedAt: stamp(-time.Hour)},
	} {
		if err := st.PutAnswer(ctx, row); err != nil {
			t.Fatalf("put answer %s: %v", row.CriterionID, err)
		}
	}

	snap := domain.AuditSnapshot{
		ID:             "a1",
		UpdatedAt:      stamp(0), // older than the local parent
		GeneralDetails: map[string]any{"base": "server"},
		Answers: []domain.AnswerSnapshot{
			{CriterionID: "newer-local", Value: testutil.PtrString("server"), UpdatedAt: stamp(0)},
			{CriterionID: "tied", Value: testutil.PtrString("server"), UpdatedAt: stamp(0)},
			{CriterionID: "older-local", Value: testutil.PtrString("server"), UpdatedAt: stamp(0)},
			{CriterionID: "brand-new", Value: testutil.PtrString("server"), UpdatedAt: stamp(0)},
		},
	}
	if err := st.ApplySnapshot(ctx, snap, syncedAt, store.SentStamps{}); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	audit, err := st.GetAudit(ctx, "a1")
	if err != nil {
		t.Fatalf("get audit: %v", err)
	}
	if store.DecodeJSONMap(audit.GeneralDetailsJSON, nil)["base"] != "local" {
		t.Fatal("older server snapshot overwrote newer local parent")
	}

	expect := map[string]string{
		"newer-local": "local",  // local strictly newer, kept
		"tied":        "local",  // equal stamps keep existing
		"older-local": "server", // server strictly newer, applied
		"brand-new":   "server", // absent locally, first write lands
	}
	for cid, want := range expect {
		got, err := st.GetAnswer(ctx, "a1", cid)
		if err != nil {
			t.Fatalf("get answer %s: %v", cid, err)
		}
		if got == nil {
			t.Fatalf("answer %s missing", cid)
		}
		if got.Value == nil || *got.Value != want {
			t.Fatalf("answer %s = %v, want %s", cid, got.Value, want)
		}
	}
}

// The server re-stamps accepted writes with its own clock, so an echoed
// snapshot can out-stamp an edit made while the batch was in flight. A dirty
// row whose stamp is not the one transmitted this cycle must survive the
// echo; the row that was transmitted is replaced and comes back clean.
func TestStoreApplySnapshotProtectsMidFlightEdits(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	syncedAt := stamp(2 * time.Hour)

	if err := st.PutAudit(ctx, &store.LocalAudit{
		ID:                 "a1",
		GeneralDetailsJSON: store.EncodeJSONMap(map[string]any{"base": "retyped"}),
		UpdatedAt:          stamp(30 * time.Second),
		IsDirty:            true,
	}); err != nil {
		t.Fatalf("put audit: %v", err)
	}
	for _, row := range []*store.LocalAnswer{
		{AuditID: "a1", CriterionID: "acked", Value: testutil.PtrString("sent"), UpdatedAt: stamp(0), IsDirty: true},
		{AuditID: "a1", CriterionID: "retyped", Value: testutil.PtrString("retyped"), UpdatedAt: stamp(30 * time.Second), IsDirty: true},
	} {
		if err := st.PutAnswer(ctx, row); err != nil {
			t.Fatalf("put answer %s: %v", row.CriterionID, err)
		}
	}

	// The batch went out with the parent and both answers at stamp(0); the
	// parent and the "retyped" answer were edited again before the response
	// landed.
	sent := store.SentStamps{
		Audits: map[string]string{"a1": stamp(0)},
		Answers: map[store.AnswerKey]string{
			{AuditID: "a1", CriterionID: "acked"}:   stamp(0),
			{AuditID: "a1", CriterionID: "retyped"}: stamp(0),
		},
	}
	snap := domain.AuditSnapshot{
		ID:             "a1",
		UpdatedAt:      stamp(time.Hour),
		GeneralDetails: map[string]any{"base": "server"},
		Answers: []domain.AnswerSnapshot{
			{CriterionID: "acked", Value: testutil.PtrString("server"), UpdatedAt: stamp(time.Hour)},
			{CriterionID: "retyped", Value: testutil.PtrString("server"), UpdatedAt: stamp(time.Hour)},
		},
	}
	if err := st.ApplySnapshot(ctx, snap, syncedAt, sent); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}

	audit, err := st.GetAudit(ctx, "a1")
	if err != nil {
		t.Fatalf("get audit: %v", err)
	}
	if store.DecodeJSONMap(audit.GeneralDetailsJSON, nil)["base"] != "retyped" {
		t.Fatal("server echo overwrote a parent edited mid-flight")
	}
	if !audit.IsDirty {
		t.Fatal("mid-flight parent edit lost its dirty flag")
	}

	acked, err := st.GetAnswer(ctx, "a1", "acked")
	if err != nil {
		t.Fatalf("get acked answer: %v", err)
	}
	if acked.Value == nil || *acked.Value != "server" || acked.IsDirty {
		t.Fatalf("transmitted answer not replaced clean: %+v", acked)
	}

	retyped, err := st.GetAnswer(ctx, "a1", "retyped")
	if err != nil {
		t.Fatalf("get retyped answer: %v", err)
	}
	if retyped.Value == nil || *retyped.Value != "retyped" {
		t.Fatalf("server echo overwrote an answer edited mid-flight: %+v", retyped)
	}
	if !retyped.IsDirty {
		t.Fatal("mid-flight answer edit lost its dirty flag")
	}
}

func TestStoreRekeyDraft(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	if err := st.PutAudit(ctx, &store.LocalAudit{ID: domain.DraftID, UpdatedAt: stamp(0), IsDirty: true}); err != nil {
		t.Fatalf("put draft: %v", err)
	}
	for _, cid := range []string{"c1", "c2"} {
		if err := st.PutAnswer(ctx, &store.LocalAnswer{AuditID: domain.DraftID, CriterionID: cid, UpdatedAt: stamp(0), IsDirty: true}); err != nil {
			t.Fatalf("put draft answer %s: %v", cid, err)
		}
	}

	if err := st.RekeyDraft(ctx, "perm-1"); err != nil {
		t.Fatalf("rekey: %v", err)
	}

	draft, err := st.GetAudit(ctx, domain.DraftID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft != nil {
		t.Fatal("draft row survived rekey")
	}
	perm, err := st.GetAudit(ctx, "perm-1")
	if err != nil {
		t.Fatalf("get rekeyed audit: %v", err)
	}
	if perm == nil || !perm.IsDirty {
		t.Fatalf("rekeyed audit = %+v, want dirty row", perm)
	}
	answers, err := st.AnswersByAudit(ctx, "perm-1")
	if err != nil {
		t.Fatalf("answers by audit: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("got %d rekeyed answers, want 2", len(answers))
	}

	if err := st.RekeyDraft(ctx, domain.DraftID); err == nil {
		t.Fatal("rekey to the draft sentinel must fail")
	}
	if err := st.RekeyDraft(ctx, ""); err == nil {
		t.Fatal("rekey to empty id must fail")
	}
}
