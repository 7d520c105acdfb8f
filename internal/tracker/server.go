package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"outreach/internal/metrics"
	"outreach/internal/repository"
)

// pixelPNG is a 1x1 transparent PNG returned for every tracking hit.
var pixelPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x00, 0x00, 0x02,
	0x00, 0x01, 0x9a, 0x00, 0xe3, 0x99, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45,
	0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

// Server is the tracking/counter HTTP service: it records pixel hits and
// reply reports against the tracking store and keeps lightweight totals for
// the degraded stats path.
type Server struct {
	router   *chi.Mux
	httpSrv  *http.Server
	tracking *repository.TrackingRepository
	counters *CounterStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewServer creates the tracker HTTP service.
func NewServer(tracking *repository.TrackingRepository, counters *CounterStore, logger *slog.Logger, m *metrics.Metrics) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		tracking: tracking,
		counters: counters,
		logger:   logger.With("component", "tracker"),
		metrics:  m,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/track/{emailID}", s.handleTrackOpen)
	s.router.Post("/track/register", s.handleRegister)
	s.router.Post("/reply", s.handleReply)
	s.router.Get("/stats", s.handleStats)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting tracker server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// handleTrackOpen records an open and returns the pixel. The open transition
// is idempotent; a pixel is returned no matter what so broken tracking never
// shows up in the recipient's mail client.
func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	emailID := chi.URLParam(r, "emailID")

	if emailID != "" {
		transitioned, err := s.tracking.MarkOpened(emailID, time.Now())
		if err != nil {
			s.logger.Error("failed to record open in tracking store", "email_id", emailID, "error", err)
		} else if transitioned {
			s.logger.Info("email opened", "email_id", emailID)
			if s.metrics != nil {
				s.metrics.OpensTotal.Inc()
			}
		}

		if _, err := s.counters.MarkOpened(emailID); err != nil {
			s.logger.Error("failed to record open in counter store", "email_id", emailID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelPNG)
}

// RegisterRequest is the body for POST /track/register
type RegisterRequest struct {
	EmailID   string `json:"email_id"`
	Recipient string `json:"recipient"`
	Name      string `json:"name"`
	SentTime  string `json:"sent_time"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EmailID == "" {
		s.sendError(w, http.StatusBadRequest, "missing email_id")
		return
	}

	if err := s.counters.AddSent(1); err != nil {
		s.logger.Error("failed to count sent email", "email_id", req.EmailID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to register email")
		return
	}

	s.logger.Info("registered sent email", "email_id", req.EmailID, "recipient", req.Recipient)
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "success", "email_id": req.EmailID})
}

// ReplyRequest is the body for POST /reply
type ReplyRequest struct {
	EmailID string `json:"email_id"`
	From    string `json:"from"`
	Content string `json:"content"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EmailID == "" {
		s.sendError(w, http.StatusBadRequest, "missing email_id")
		return
	}

	transitioned, err := s.tracking.MarkReplied(req.EmailID, time.Now())
	if err != nil {
		// Orphan replies (no matching send) and store failures are both
		// tolerated; the counter below still records the event once.
		s.logger.Error("failed to record reply in tracking store", "email_id", req.EmailID, "error", err)
	} else if transitioned {
		s.logger.Info("email replied", "email_id", req.EmailID, "from", req.From)
		if s.metrics != nil {
			s.metrics.RepliesTotal.Inc()
		}
	}

	if _, err := s.counters.MarkReplied(req.EmailID); err != nil {
		s.logger.Error("failed to record reply in counter store", "email_id", req.EmailID, "error", err)
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// StatsResponse is the body for GET /stats
type StatsResponse struct {
	Sent    int `json:"sent"`
	Opened  int `json:"opened"`
	Replied int `json:"replied"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sent, opened, replied, err := s.counters.Totals()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	s.sendJSON(w, http.StatusOK, StatsResponse{Sent: sent, Opened: opened, Replied: replied})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
