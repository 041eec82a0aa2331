package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/zailonsoft/carbot/internal/models"
)

// Connection pool defaults for PostgreSQL.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists the report log and inbound dedup records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ ReportLog = (*PostgresStore)(nil)
	_ DedupRepo = (*PostgresStore)(nil)
)

// NewPostgresStore connects to PostgreSQL and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres store ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddReport(ctx context.Context, entry models.ReportEntry) error {
	e := prepareEntry(entry)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO staff_reports (`+reportColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ConversationID, string(e.Intent), e.Outcome, e.Body, e.Recipients, e.Delivered, e.CreatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore AddReport failed", "error", err, "conversation", e.ConversationID)
		return fmt.Errorf("failed to insert report for %s: %w", e.ConversationID, err)
	}
	slog.Debug("PostgresStore AddReport succeeded", "id", e.ID, "conversation", e.ConversationID)
	return nil
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]models.ReportEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM staff_reports ORDER BY created_at DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		slog.Error("PostgresStore ListReports query failed", "error", err)
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	return scanReports(rows)
}

func (s *PostgresStore) RecordInbound(ctx context.Context, messageID, conversationID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, conversation_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
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
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
		return err
	}
	return nil
}
