package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/piiwatch/internal/apperr"
	"github.com/raaihank/piiwatch/internal/monitor"
	"github.com/raaihank/piiwatch/internal/scan"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status through its apperr kind
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: err.Error(), Kind: string(apperr.KindOf(err))}
	if status >= http.StatusInternalServerError {
		s.logger.WithRequestID(requestID(r.Context())).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		var e *apperr.Error
		if errors.As(err, &e) {
			body.Error = e.Message
		} else {
			body.Error = "internal server error"
		}
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().Format(time.RFC3339),
		"uptime":          time.Since(s.started).Round(time.Second).String(),
		"active_scans":    s.svc.Scans.Active(),
		"active_monitors": s.svc.Monitors.Active(),
	}
	if s.svc.Alerts != nil {
		body["alerts"] = s.svc.Alerts.Stats()
	}
	if s.svc.Connections != nil {
		body["websocket"] = s.svc.Connections.Stats()
	}
	if s.svc.Cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if st, err := s.svc.Cache.Stats(ctx); err != nil {
			body["cache"] = map[string]string{"error": err.Error()}
		} else {
			body["cache"] = st
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"name":    "piiwatch",
		"version": Version,
	}
	if s.svc.Detector != nil {
		body["models"] = s.svc.Detector.Status()
		body["patterns"] = s.svc.Detector.EnabledPatterns()
	}
	if s.svc.Gate != nil {
		body["alert_thresholds"] = s.svc.Gate.Thresholds()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var req scan.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.svc.Scans.Start(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scan_id": session.ID, "status": "started"})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Scans.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	log, err := s.svc.Scans.Events(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamEvents(w, r, log)
}

func (s *Server) handleScanURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.Scans.ScanURL(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScanSocial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform string `json:"platform"`
		Handle   string `json:"handle"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.svc.Scans.ScanSocial(r.Context(), req.Platform, req.Handle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleScanEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.svc.Scans.ScanEmail(r.Context(), req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleScanFile(w http.ResponseWriter, r *http.Request) {
	limit := s.config.Server.MaxUploadSize
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		s.writeError(w, r, apperr.Validation("invalid upload: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, apperr.Validation("multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, apperr.Validation("failed to read upload: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Scans.AnalyzeFile(r.Context(), header.Filename, content))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Scans.AnalyzeText(r.Context(), req.Text))
}

func (s *Server) handleStartMonitor(w http.ResponseWriter, r *http.Request) {
	var req monitor.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svc.Monitors.Start(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitor_id": m.ID,
		"status":     "started",
		"started_at": m.StartedAt,
		"ends_at":    m.EndsAt,
	})
}

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"monitors": s.svc.Monitors.List()})
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Monitors.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleStopMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := s.svc.Monitors.Stop(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"monitor_id": id, "status": string(status)})
}

func (s *Server) handleMonitorStream(w http.ResponseWriter, r *http.Request) {
	log, err := s.svc.Monitors.Events(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.streamEvents(w, r, log)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats.Snapshot(s.svc.Scans.Active(), s.svc.Monitors.Active()))
}
