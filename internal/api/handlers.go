package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zailonsoft/carbot/internal/models"
)

// maxReportLimit caps /reports page size.
const maxReportLimit = 500

// fallbackErrorResponse is written when a response cannot be encoded.
var fallbackErrorResponse = []byte(`{"status":"error","error":"Internal server error"}`)

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type statusResponse struct {
	Status         string    `json:"status"`
	Channel        string    `json:"channel,omitempty"`
	Ready          bool      `json:"ready"`
	ActiveSessions int       `json:"active_sessions"`
	StartedAt      time.Time `json:"started_at"`
	Uptime         string    `json:"uptime"`
}

type reportsResponse struct {
	Reports []models.ReportEntry `json:"reports"`
	Count   int                  `json:"count"`
}

// writeJSONResponse marshals before writing headers so encoding errors still
// produce a well-formed 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("API failed to marshal JSON response", "error", err)
		data = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Error("API failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, msg string) {
	writeJSONResponse(w, statusCode, errorResponse{Status: "error", Error: msg})
}

// statusHandler reports channel readiness and the active session count. It
// answers 503 while the channel is not ready.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:    "ok",
		Channel:   s.opts.ChannelID,
		Ready:     true,
		StartedAt: s.started.UTC(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.opts.Channel != nil {
		resp.Ready = s.opts.Channel.Ready()
	}
	if s.opts.Sessions != nil {
		resp.ActiveSessions = s.opts.Sessions.Len()
	}
	code := http.StatusOK
	if !resp.Ready {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, code, resp)
}

// reportsHandler lists the most recent staff reports, newest first.
func (s *Server) reportsHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.Reports == nil {
		writeError(w, http.StatusNotFound, "report log not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxReportLimit)
	}
	entries, err := s.opts.Reports.ListReports(r.Context(), limit)
	if err != nil {
		slog.Error("API failed to list reports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if entries == nil {
		entries = []models.ReportEntry{}
	}
	writeJSONResponse(w, http.StatusOK, reportsResponse{Reports: entries, Count: len(entries)})
}

// qrCodeHandler serves the pending WhatsApp login QR code as PNG.
func (s *Server) qrCodeHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.QRCode == nil {
		writeError(w, http.StatusNotFound, "qr code login not in use")
		return
	}
	png, ok := s.opts.QRCode()
	if !ok {
		writeError(w, http.StatusNotFound, "no qr code pending")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		slog.Error("API failed to write qr code", "error", err)
	}
}

// mediaHandler serves outbound media to Twilio by token.
func (s *Server) mediaHandler(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	m, ok := s.opts.Twilio.Outbox().Get(token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	ct := m.Mimetype
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(m.Data)))
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", `inline; filename="`+m.Filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(m.Data); err != nil {
		slog.Error("API failed to write media", "token", token, "error", err)
	}
}
