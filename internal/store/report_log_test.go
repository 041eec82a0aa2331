package store

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/zailonsoft/carbot/internal/models"
)

func TestDetectDSNType(t *testing.T) {
	tests := map[string]string{
		"postgres://user:pw@localhost/carbot":      "postgres",
		"postgresql://localhost/carbot":            "postgres",
		"host=localhost user=carbot dbname=carbot": "postgres",
		"/var/lib/carbot/carbot.db":                "sqlite3",
		"file:carbot.db?_foreign_keys=on":          "sqlite3",
		"":                                         "sqlite3",
	}
	for dsn, want := range tests {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestInMemoryReportLog(t *testing.T) {
	l := NewInMemoryReportLog()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 3; i++ {
		err := l.AddReport(ctx, models.ReportEntry{
			ConversationID: "c1",
			Intent:         models.IntentFinance,
			Outcome:        "completed",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("AddReport: %v", err)
		}
	}
	got, err := l.ListReports(ctx, 2)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !got[0].CreatedAt.After(got[1].CreatedAt) {
		t.Error("reports not newest first")
	}
	if got[0].ID == "" {
		t.Error("AddReport did not assign an id")
	}
}

func TestSQLiteStoreReportsAndDedup(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "carbot.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	first := models.ReportEntry{ConversationID: "c1", Intent: models.IntentVisit, Outcome: "completed", Body: "b1", Recipients: 2, Delivered: 2, CreatedAt: time.Now().Add(-time.Minute)}
	second := models.ReportEntry{ConversationID: "c2", Intent: models.IntentBuy, Outcome: "abandoned", Body: "b2", Recipients: 2, Delivered: 1}
	if err := s.AddReport(ctx, first); err != nil {
		t.Fatalf("AddReport: %v", err)
	}
	if err := s.AddReport(ctx, second); err != nil {
		t.Fatalf("AddReport: %v", err)
	}

	got, err := s.ListReports(ctx, 10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ConversationID != "c2" || got[0].Intent != models.IntentBuy || got[0].Delivered != 1 {
		t.Errorf("unexpected newest entry: %+v", got[0])
	}

	ok, err := s.RecordInbound(ctx, "m1", "c1")
	if err != nil || !ok {
		t.Fatalf("first RecordInbound = %v, %v", ok, err)
	}
	ok, err = s.RecordInbound(ctx, "m1", "c1")
	if err != nil || ok {
		t.Fatalf("duplicate RecordInbound = %v, %v", ok, err)
	}
}

func TestNewSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Fatal("expected error without DSN")
	}
}

func TestPostgresStoreWithSQLMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	s := &PostgresStore{db: db}
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO staff_reports")).
		WithArgs(sqlmock.AnyArg(), "c1", "finance", "completed", "body", 2, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.AddReport(ctx, models.ReportEntry{ConversationID: "c1", Intent: models.IntentFinance, Outcome: "completed", Body: "body", Recipients: 2, Delivered: 2}); err != nil {
		t.Fatalf("AddReport: %v", err)
	}

	created := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "intent", "outcome", "body", "recipients", "delivered", "created_at"}).
		AddRow("r1", "c1", "finance", "completed", "body", 2, 2, created)
	mock.ExpectQuery(regexp.QuoteMeta("FROM staff_reports ORDER BY created_at DESC LIMIT $1")).
		WithArgs(DefaultReportListLimit).
		WillReturnRows(rows)
	got, err := s.ListReports(ctx, 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" || got[0].Intent != models.IntentFinance || !got[0].CreatedAt.Equal(created) {
		t.Errorf("unexpected rows: %+v", got)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inbound_dedup")).
		WithArgs("m1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err := s.RecordInbound(ctx, "m1", "c1")
	if err != nil || ok {
		t.Fatalf("RecordInbound on conflict = %v, %v; want false, nil", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMemoryDedup(t *testing.T) {
	d := NewMemoryDedup(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := d.RecordInbound(ctx, "m1", "c1"); !ok {
		t.Fatal("first record rejected")
	}
	if ok, _ := d.RecordInbound(ctx, "m1", "c1"); ok {
		t.Fatal("duplicate accepted")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := d.RecordInbound(ctx, "m1", "c1"); !ok {
		t.Fatal("expired id still treated as duplicate")
	}
	if ok, _ := d.RecordInbound(ctx, "", "c1"); !ok {
		t.Fatal("empty id must pass through")
	}
}
