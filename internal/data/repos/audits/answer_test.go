package audits_test

import (
	"context"
	"testing"
	"time"

	"github.com/bikorot/auditsync/internal/data/repos/audits"
	"github.com/bikorot/auditsync/internal/data/repos/testutil"
	"github.com/bikorot/auditsync/internal/domain"
)

func TestAnswerRepoUpsertIsIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	auditRepo := audits.NewAuditRepo(gdb, testutil.Logger(t))
	repo := audits.NewAnswerRepo(gdb, testutil.Logger(t))
	ctx := context.Background()

	seedAudit(t, tx, auditRepo, "a1", baseTime)

	first := &domain.Answer{
		AuditID:     "a1",
		CriterionID: "c1",
		Value:       testutil.PtrString("PARTIAL"),
		Comment:     testutil.PtrString("needs work"),
		UpdatedAt:   baseTime,
	}
	if err := repo.Upsert(ctx, tx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := &domain.Answer{
		AuditID:     "a1",
		CriterionID: "c1",
		Value:       testutil.PtrString("FULL"),
		Comment:     nil,
		UpdatedAt:   baseTime.Add(time.Minute),
	}
	if err := repo.Upsert(ctx, tx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := repo.GetByAudit(ctx, tx, "a1")
	if err != nil {
		t.Fatalf("get by audit: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows after double upsert, want 1", len(rows))
	}
	if rows[0].Value == nil || *rows[0].Value != "FULL" {
		t.Fatalf("value = %v, want FULL", rows[0].Value)
	}
	if rows[0].Comment != nil {
		t.Fatalf("comment = %q, want cleared", *rows[0].Comment)
	}
	if !rows[0].UpdatedAt.UTC().Truncate(time.Millisecond).Equal(baseTime.Add(time.Minute)) {
		t.Fatalf("updated_at = %v, want %v", rows[0].UpdatedAt, baseTime.Add(time.Minute))
	}
}

func TestAnswerRepoGetStamps(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	auditRepo := audits.NewAuditRepo(gdb, testutil.Logger(t))
	repo := audits.NewAnswerRepo(gdb, testutil.Logger(t))
	ctx := context.Background()

	seedAudit(t, tx, auditRepo, "a1", baseTime)
	seedAudit(t, tx, auditRepo, "a2", baseTime)
	for _, row := range []*domain.Answer{
		{AuditID: "a1", CriterionID: "c1", UpdatedAt: baseTime},
		{AuditID: "a1", CriterionID: "c2", UpdatedAt: baseTime.Add(time.Second)},
		{AuditID: "a2", CriterionID: "c1", UpdatedAt: baseTime.Add(2 * time.Second)},
	} {
		if err := repo.Upsert(ctx, tx, row); err != nil {
			t.Fatalf("upsert %s/%s: %v", row.AuditID, row.CriterionID, err)
		}
	}

	stamps, err := repo.GetStamps(ctx, tx, []audits.AnswerKey{
		{AuditID: "a1", CriterionID: "c1"},
		{AuditID: "a2", CriterionID: "c1"},
		{AuditID: "a1", CriterionID: "missing"},
	})
	if err != nil {
		t.Fatalf("get stamps: %v", err)
	}
	if len(stamps) != 2 {
		t.Fatalf("got %d stamps, want 2", len(stamps))
	}
	got := stamps[audits.AnswerKey{AuditID: "a2", CriterionID: "c1"}]
	if !got.UTC().Truncate(time.Millisecond).Equal(baseTime.Add(2 * time.Second)) {
		t.Fatalf("a2/c1 stamp = %v", got)
	}
	if _, ok := stamps[audits.AnswerKey{AuditID: "a1", CriterionID: "missing"}]; ok {
		t.Fatal("absent key should not appear in stamp map")
	}
}

func TestAnswerRepoGetByAuditAndCriteria(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	auditRepo := audits.NewAuditRepo(gdb, testutil.Logger(t))
	repo := audits.NewAnswerRepo(gdb, testutil.Logger(t))
	ctx := context.Background()

	seedAudit(t, tx, auditRepo, "a1", baseTime)
	for _, cid := range []string{"c1", "c2", "c3"} {
		err := repo.Upsert(ctx, tx, &domain.Answer{AuditID: "a1", CriterionID: cid, UpdatedAt: baseTime})
		if err != nil {
			t.Fatalf("upsert %s: %v", cid, err)
		}
	}

	rows, err := repo.GetByAuditAndCriteria(ctx, tx, "a1", []string{"c1", "c3"})
	if err != nil {
		t.Fatalf("get by criteria: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	none, err := repo.GetByAuditAndCriteria(ctx, tx, "a1", nil)
	if err != nil {
		t.Fatalf("get with no criteria: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("got %d rows for empty criterion set", len(none))
	}
}
