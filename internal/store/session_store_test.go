package store

import (
	"sync"
	"testing"
	"time"

	"github.com/zailonsoft/carbot/internal/models"
)

func TestSessionStoreGetOrCreateDoesNotStore(t *testing.T) {
	s := NewSessionStore()
	now := time.Now()
	sess := s.GetOrCreate("c1", now)
	if sess.Step != models.StepIdle || sess.ID != "c1" {
		t.Fatalf("unexpected fresh session: %+v", sess)
	}
	if s.Len() != 0 {
		t.Fatalf("GetOrCreate stored the default session")
	}
	s.Set(sess)
	if s.Len() != 1 {
		t.Fatalf("Set did not store the session")
	}
}

func TestSessionStoreCopiesValues(t *testing.T) {
	s := NewSessionStore()
	sess := models.NewSession("c1", time.Now())
	sess.Step = models.StepAwaitingDownPayment
	sess.Begin(&models.FinanceData{DownPayment: "1000"}, time.Now())
	s.Set(sess)

	sess.Step = models.StepAwaitingInstallments
	sess.Branch.(*models.FinanceData).DownPayment = "9999"

	got, ok := s.Get("c1")
	if !ok {
		t.Fatal("session not found")
	}
	if got.Step != models.StepAwaitingDownPayment {
		t.Errorf("stored step mutated through caller copy: %s", got.Step)
	}
	if dp := got.Branch.(*models.FinanceData).DownPayment; dp != "1000" {
		t.Errorf("stored branch mutated through caller copy: %s", dp)
	}

	got.Branch.(*models.FinanceData).Installments = "48"
	again, _ := s.Get("c1")
	if again.Branch.(*models.FinanceData).Installments != "" {
		t.Error("Get returned a shared branch")
	}
}

func TestSessionStoreDelete(t *testing.T) {
	s := NewSessionStore()
	s.Set(models.NewSession("c1", time.Now()))
	s.Delete("c1")
	s.Delete("missing")
	if _, ok := s.Get("c1"); ok {
		t.Error("session still present after Delete")
	}
}

func TestSessionStoreSweep(t *testing.T) {
	s := NewSessionStore()
	now := time.Now()
	old := models.NewSession("old", now.Add(-11*time.Minute))
	fresh := models.NewSession("fresh", now.Add(-9*time.Minute))
	s.Set(old)
	s.Set(fresh)

	removed := s.Sweep(func(sess *models.Session) bool {
		return now.Sub(sess.LastInteraction) > 10*time.Minute
	})
	if len(removed) != 1 || removed[0].ID != "old" {
		t.Fatalf("Sweep removed %v, want [old]", removed)
	}
	if _, ok := s.Get("fresh"); !ok {
		t.Error("fresh session was swept")
	}
	if _, ok := s.Get("old"); ok {
		t.Error("old session survived sweep")
	}
}

func TestSessionStoreConcurrentAccess(t *testing.T) {
	s := NewSessionStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sess := s.GetOrCreate("c", time.Now())
			sess.Step = models.StepAwaitingIntent
			s.Set(sess)
		}()
		go func() {
			defer wg.Done()
			s.Sweep(func(*models.Session) bool { return false })
			_ = s.Len()
		}()
	}
	wg.Wait()
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}
