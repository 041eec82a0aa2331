package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zailonsoft/carbot/internal/messaging"
	"github.com/zailonsoft/carbot/internal/metrics"
	"github.com/zailonsoft/carbot/internal/models"
	"github.com/zailonsoft/carbot/internal/store"
	"github.com/zailonsoft/carbot/internal/twiliowhatsapp"
)

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

type failingReportLog struct {
	store.InMemoryReportLog
}

func (*failingReportLog) ListReports(context.Context, int) ([]models.ReportEntry, error) {
	return nil, errors.New("database is locked")
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStatusHandler(t *testing.T) {
	sessions := store.NewSessionStore()
	sessions.Set(models.NewSession("5511999990000@s.whatsapp.net", time.Now()))

	srv := NewServer(WithChannel("whatsapp", readiness(true)), WithSessions(sessions))
	rec := get(t, srv.Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || resp.ActiveSessions != 1 || resp.Channel != "whatsapp" {
		t.Errorf("status = %+v", resp)
	}

	srv = NewServer(WithChannel("whatsapp", readiness(false)))
	if rec := get(t, srv.Handler(), "/status"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not ready status code = %d, want 503", rec.Code)
	}
}

func TestReportsHandler(t *testing.T) {
	log := store.NewInMemoryReportLog()
	for i := 0; i < 3; i++ {
		_ = log.AddReport(context.Background(), models.ReportEntry{ConversationID: "c", Intent: models.IntentVisit, Outcome: "completed"})
	}
	srv := NewServer(WithReportLog(log))

	rec := get(t, srv.Handler(), "/reports?limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var resp reportsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Reports) != 2 {
		t.Errorf("reports = %+v", resp)
	}

	tests := []struct {
		name   string
		srv    *Server
		target string
		want   int
	}{
		{"bad limit", srv, "/reports?limit=abc", http.StatusBadRequest},
		{"zero limit", srv, "/reports?limit=0", http.StatusBadRequest},
		{"no log", NewServer(), "/reports", http.StatusNotFound},
		{"log error", NewServer(WithReportLog(&failingReportLog{})), "/reports", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(t, tt.srv.Handler(), tt.target); rec.Code != tt.want {
				t.Errorf("status code = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveInbound("text")

	rec := get(t, NewServer(WithGatherer(reg)).Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `carbot_messages_inbound_total{kind="text"} 1`) {
		t.Errorf("metrics output missing inbound counter:\n%s", rec.Body.String())
	}
}

func TestQRCodeHandler(t *testing.T) {
	png := []byte("\x89PNG fake")
	pending := true
	srv := NewServer(WithQRCode(func() ([]byte, bool) { return png, pending }))

	rec := get(t, srv.Handler(), "/qrcode")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" || rec.Body.String() != string(png) {
		t.Errorf("qr response = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	pending = false
	if rec := get(t, srv.Handler(), "/qrcode"); rec.Code != http.StatusNotFound {
		t.Errorf("linked device status = %d, want 404", rec.Code)
	}
	if rec := get(t, NewServer().Handler(), "/qrcode"); rec.Code != http.StatusNotFound {
		t.Errorf("twilio mode status = %d, want 404", rec.Code)
	}
}

func TestTwilioRoutes(t *testing.T) {
	tw := messaging.NewTwilioService(twiliowhatsapp.NewMockClient(), messaging.WithPublicBaseURL("https://bot.example.com"))
	defer tw.Stop()
	srv := NewServer(WithTwilio(tw))

	form := url.Values{"From": {"whatsapp:+5511999990000"}, "Body": {"oi"}, "MessageSid": {"SM9"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", rec.Code)
	}
	select {
	case msg := <-tw.Inbound():
		if msg.ConversationID != "+5511999990000" || msg.Text != "oi" {
			t.Errorf("inbound = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook did not emit an inbound message")
	}

	token := tw.Outbox().Put(models.Media{Data: []byte("%PDF-1.4"), Mimetype: "application/pdf", Filename: "rg.pdf"})
	rec = get(t, srv.Handler(), "/media/"+token)
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" || string(body) != "%PDF-1.4" {
		t.Errorf("media response = %d %q %q", rec.Code, rec.Header().Get("Content-Type"), body)
	}
	if rec := get(t, srv.Handler(), "/media/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown token status = %d", rec.Code)
	}
}

func TestTwilioRoutesAbsentWithoutTwilio(t *testing.T) {
	srv := NewServer()
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want route missing", rec.Code)
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv := NewServer(WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
