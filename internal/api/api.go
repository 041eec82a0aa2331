// Package api provides the ops HTTP surface of carbot.
//
// It exposes bot status, the staff report log, Prometheus metrics, the
// WhatsApp login QR code and, when the Twilio channel is in use, the Twilio
// webhooks and the outbound media URLs Twilio fetches.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zailonsoft/carbot/internal/messaging"
	"github.com/zailonsoft/carbot/internal/store"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Readiness reports whether the chat channel can deliver messages.
type Readiness interface {
	Ready() bool
}

// QRCodeFunc returns the current WhatsApp login QR code as PNG.
type QRCodeFunc func() ([]byte, bool)

// Opts holds the optional collaborators of a Server.
type Opts struct {
	Addr      string
	Channel   Readiness
	Sessions  *store.SessionStore
	Reports   store.ReportLog
	Gatherer  prometheus.Gatherer
	QRCode    QRCodeFunc
	Twilio    *messaging.TwilioService
	ChannelID string
}

// Option configures a Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithChannel sets the channel reported by /status.
func WithChannel(name string, r Readiness) Option {
	return func(o *Opts) {
		o.ChannelID = name
		o.Channel = r
	}
}

// WithSessions reports the active session count on /status.
func WithSessions(s *store.SessionStore) Option {
	return func(o *Opts) { o.Sessions = s }
}

// WithReportLog serves /reports from l.
func WithReportLog(l store.ReportLog) Option {
	return func(o *Opts) { o.Reports = l }
}

// WithGatherer serves /metrics from g.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *Opts) { o.Gatherer = g }
}

// WithQRCode serves /qrcode from f.
func WithQRCode(f QRCodeFunc) Option {
	return func(o *Opts) { o.QRCode = f }
}

// WithTwilio mounts the Twilio webhooks and the media outbox.
func WithTwilio(s *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = s }
}

// Server is the ops HTTP server.
type Server struct {
	opts    Opts
	started time.Time
	router  chi.Router
}

// NewServer builds a Server and its routes.
func NewServer(opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{opts: o, started: time.Now()}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/status", s.statusHandler)
	r.Get("/reports", s.reportsHandler)
	r.Get("/qrcode", s.qrCodeHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	if tw := s.opts.Twilio; tw != nil {
		r.Post("/twilio/webhook", tw.WebhookHandler)
		r.Post("/twilio/status", tw.StatusHandler)
		r.Get(messaging.MediaPathPrefix+"{token}", s.mediaHandler)
	}
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	slog.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

// requestLogger logs each request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
