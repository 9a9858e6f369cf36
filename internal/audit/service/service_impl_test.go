package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/counselops/letterflow/internal/audit/domain"
	"github.com/counselops/letterflow/internal/audit/repository"
	"github.com/counselops/letterflow/internal/auditcontext"
	"github.com/counselops/letterflow/internal/clock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.Exec(`CREATE TABLE letter_audits (
		id INTEGER PRIMARY KEY,
		letter_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		old_status TEXT,
		new_status TEXT,
		performed_by TEXT,
		notes TEXT,
		metadata TEXT,
		created_at DATETIME NOT NULL
	)`).Error
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newAuditService(t *testing.T, db *gorm.DB) auditdomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.SystemClock{},
		Repo:  repository.Provide(),
	})
}

func TestRecordValidatesEntry(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db)
	ctx := context.Background()

	if err := svc.Record(ctx, auditdomain.Entry{Action: "created"}); !errors.Is(err, auditdomain.ErrInvalidLetter) {
		t.Fatalf("expected invalid letter, got %v", err)
	}
	if err := svc.Record(ctx, auditdomain.Entry{LetterID: 1, Action: "  "}); !errors.Is(err, auditdomain.ErrInvalidAction) {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

func TestTrailCausalOrder(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db)
	ctx := context.Background()

	actions := []string{"created", "submitted", "review_started", "approved"}
	for _, action := range actions {
		if err := svc.Record(ctx, auditdomain.Entry{LetterID: 42, Action: action}); err != nil {
			t.Fatalf("record %s: %v", action, err)
		}
	}
	// A record against another letter must not leak into the trail.
	if err := svc.Record(ctx, auditdomain.Entry{LetterID: 43, Action: "created"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	trail, err := svc.Trail(ctx, 42, auditdomain.OrderCausal)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != len(actions) {
		t.Fatalf("expected %d records, got %d", len(actions), len(trail))
	}
	for i, record := range trail {
		if record.Action != actions[i] {
			t.Fatalf("position %d: expected %s, got %s", i, actions[i], record.Action)
		}
	}

	recent, err := svc.Trail(ctx, 42, auditdomain.OrderRecent)
	if err != nil {
		t.Fatalf("trail recent: %v", err)
	}
	if recent[0].Action != "approved" {
		t.Fatalf("recent order must lead with the newest record, got %s", recent[0].Action)
	}
}

func TestRecordCapturesRequestContext(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db)

	ctx := auditcontext.WithActor(context.Background(), "12345", "admin")
	ctx = auditcontext.WithIPAddress(ctx, "203.0.113.9")
	ctx = auditcontext.WithUserAgent(ctx, "letterflow-web/1.0")

	if err := svc.Record(ctx, auditdomain.Entry{LetterID: 7, Action: "review_started"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	trail, err := svc.Trail(context.Background(), 7, auditdomain.OrderCausal)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	record := trail[0]
	if record.PerformedBy == nil || *record.PerformedBy != "12345" {
		t.Fatal("actor from context must fill performed_by")
	}
	if record.Metadata["ip_address"] != "203.0.113.9" {
		t.Fatalf("missing ip_address metadata: %v", record.Metadata)
	}
	if record.Metadata["user_agent"] != "letterflow-web/1.0" {
		t.Fatalf("missing user_agent metadata: %v", record.Metadata)
	}
}

func TestRecordPrefersExplicitPerformer(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db)

	ctx := auditcontext.WithActor(context.Background(), "999", "admin")
	err := svc.Record(ctx, auditdomain.Entry{
		LetterID:    8,
		Action:      "rejected",
		PerformedBy: "111",
		Notes:       "missing citation",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	trail, err := svc.Trail(context.Background(), 8, auditdomain.OrderCausal)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if trail[0].PerformedBy == nil || *trail[0].PerformedBy != "111" {
		t.Fatal("explicit performer must win over context actor")
	}
	if trail[0].Notes != "missing citation" {
		t.Fatalf("notes dropped: %q", trail[0].Notes)
	}
}

func TestRecordBestEffortSwallowsFailure(t *testing.T) {
	db := setupAuditTestDB(t)
	svc := newAuditService(t, db)

	if err := db.Exec(`DROP TABLE letter_audits`).Error; err != nil {
		t.Fatalf("drop table: %v", err)
	}

	// Must not panic and must not surface the write failure.
	svc.RecordBestEffort(context.Background(), auditdomain.Entry{LetterID: 9, Action: "submitted"})
}
