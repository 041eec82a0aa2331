package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zailonsoft/carbot/internal/models"
)

// DefaultReportListLimit caps ListReports when the caller passes no limit.
const DefaultReportListLimit = 50

// ReportLog is an audit trail of staff reports that were delivered.
type ReportLog interface {
	AddReport(ctx context.Context, entry models.ReportEntry) error
	// ListReports returns the newest entries first.
	ListReports(ctx context.Context, limit int) ([]models.ReportEntry, error)
	Close() error
}

// prepareEntry fills the id and timestamp when the caller left them empty.
func prepareEntry(e models.ReportEntry) models.ReportEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return e
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultReportListLimit
	}
	return limit
}

// InMemoryReportLog keeps report entries in memory.
type InMemoryReportLog struct {
	mu      sync.RWMutex
	entries []models.ReportEntry
}

// NewInMemoryReportLog creates an empty in-memory report log.
func NewInMemoryReportLog() *InMemoryReportLog {
	return &InMemoryReportLog{}
}

func (l *InMemoryReportLog) AddReport(_ context.Context, entry models.ReportEntry) error {
	l.mu.Lock()
	l.entries = append(l.entries, prepareEntry(entry))
	l.mu.Unlock()
	return nil
}

func (l *InMemoryReportLog) ListReports(_ context.Context, limit int) ([]models.ReportEntry, error) {
	l.mu.RLock()
	out := append([]models.ReportEntry(nil), l.entries...)
	l.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *InMemoryReportLog) Close() error { return nil }
