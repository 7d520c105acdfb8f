package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"outreach/internal/models"
	"outreach/internal/scheduler"
)

// StatusResponse is the body for GET /api/v1/status
type StatusResponse struct {
	Campaign *models.Campaign `json:"campaign"`
	NextRun  string           `json:"next_run,omitempty"`
	Uptime   string           `json:"uptime"`
}

// StartRequest is the body for POST /api/v1/campaign/start
type StartRequest struct {
	DailyCount      int      `json:"daily_count"`
	TargetCountries []string `json:"target_countries"`
	TargetRegions   []string `json:"target_regions"`
	SendTime        string   `json:"send_time"`
	Workdays        []string `json:"workdays"`
	TemplateName    string   `json:"template_name"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	campaign, next := s.control.Status()

	resp := StatusResponse{
		Campaign: campaign,
		Uptime:   time.Since(s.startTime).String(),
	}
	if !next.IsZero() {
		resp.NextRun = next.Format(time.RFC3339)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	campaign := &models.Campaign{
		DailyCount:      req.DailyCount,
		TargetCountries: req.TargetCountries,
		TargetRegions:   req.TargetRegions,
		SendTime:        req.SendTime,
		Workdays:        req.Workdays,
		TemplateName:    req.TemplateName,
	}

	if err := s.control.Start(campaign); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			s.sendError(w, http.StatusConflict, err.Error())
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Stop(); err != nil {
		if errors.Is(err, scheduler.ErrNotRunning) {
			s.sendError(w, http.StatusConflict, err.Error())
			return
		}
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleSendNow(w http.ResponseWriter, r *http.Request) {
	if err := s.control.RunNow(); err != nil {
		if errors.Is(err, scheduler.ErrNoCampaign) {
			s.sendError(w, http.StatusConflict, err.Error())
			return
		}
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The batch runs in the background; accepted, not completed.
	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "dispatching"})
}

// handleStats answers GET /api/v1/stats?dates=2025-04-15,2025-04-16 or
// ?all=true. With neither parameter it reports today.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"

	var dates []string
	if raw := r.URL.Query().Get("dates"); raw != "" {
		dates = strings.Split(raw, ",")
	}
	if !all && len(dates) == 0 {
		dates = []string{time.Now().Format("2006-01-02")}
	}

	summary, err := s.stats.Aggregate(dates, all)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, summary)
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
