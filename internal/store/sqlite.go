package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zailonsoft/carbot/internal/models"
)

// DefaultDirPermissions is used when creating the database directory.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists the report log and inbound dedup records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ ReportLog = (*SQLiteStore)(nil)
	_ DedupRepo = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (creating if needed) the SQLite database and applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "dsn", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddReport(ctx context.Context, entry models.ReportEntry) error {
	e := prepareEntry(entry)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staff_reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConversationID, string(e.Intent), e.Outcome, e.Body, e.Recipients, e.Delivered, e.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddReport failed", "error", err, "conversation", e.ConversationID)
		return fmt.Errorf("failed to insert report for %s: %w", e.ConversationID, err)
	}
	slog.Debug("SQLiteStore AddReport succeeded", "id", e.ID, "conversation", e.ConversationID)
	return nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]models.ReportEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM staff_reports ORDER BY created_at DESC LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		slog.Error("SQLiteStore ListReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	return scanReports(rows)
}

func (s *SQLiteStore) RecordInbound(ctx context.Context, messageID, conversationID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbound_dedup (message_id, conversation_id, received_at) VALUES (?, ?, ?)`,
		messageID, conversationID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
		return err
	}
	return nil
}
