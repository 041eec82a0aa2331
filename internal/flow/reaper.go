package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/report"
)

// Reaper deletes sessions idle for longer than the profile's idle timeout.
// Customers are not notified. With report_abandoned enabled, a reaped session
// that was inside a funnel is reported to staff as abandoned.
type Reaper struct {
	engine  *Engine
	timeout time.Duration
}

// NewReaper creates a Reaper over the engine's store and collaborators.
func NewReaper(e *Engine) *Reaper {
	return &Reaper{engine: e, timeout: e.profile.IdleTimeout}
}

// Sweep removes stale sessions and returns how many were removed.
func (r *Reaper) Sweep(ctx context.Context) int {
	e := r.engine
	now := e.now()
	removed := e.sessions.Sweep(func(s *models.Session) bool {
		return now.Sub(s.LastInteraction) >= r.timeout
	})
	e.metrics.ObserveReaped(len(removed))
	e.metrics.SetActiveSessions(e.sessions.Len())
	if len(removed) == 0 {
		return 0
	}
	slog.Info("Reaper removed idle sessions", "count", len(removed), "timeout", r.timeout)

	for _, s := range removed {
		if !s.Intent.IsFunnel() {
			continue
		}
		e.metrics.ObserveFunnel(string(s.Intent), report.OutcomeAbandoned)
		if !e.profile.ReportAbandoned {
			continue
		}
		body := report.Format(s, e.reportOptions(s, "", report.OutcomeAbandoned, now))
		if err := e.deliverReport(ctx, s, body, report.OutcomeAbandoned); err != nil {
			slog.Error("Reaper failed to report abandoned session", "conversation", s.ID, "error", err)
			e.metrics.ObserveExternalFailure(depStaff)
		}
	}
	return len(removed)
}

// Job adapts Sweep to the scheduler's func() jobs.
func (r *Reaper) Job(ctx context.Context) func() {
	return func() { r.Sweep(ctx) }
}
