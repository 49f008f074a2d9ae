package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/raaihank/piiwatch/internal/apperr"
	"github.com/raaihank/piiwatch/internal/events"
	"go.uber.org/zap"
)

// streamEvents writes an event log as server-sent events until the done sentinel
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, log *events.Log) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}
	from, err := resumeIndex(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	err = log.Stream(r.Context(), from, func(ev events.Event) error {
		var data interface{} = ev.Data
		if ev.Type == events.TypeDone || data == nil {
			data = struct{}{}
		}
		payload, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Index, ev.Type, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		s.logger.WithRequestID(requestID(r.Context())).Debug("Event stream ended", zap.Error(err))
	}
}

// resumeIndex reads ?last_event= or Last-Event-ID, the index of the last event
// the subscriber saw. Streaming resumes right after it.
func resumeIndex(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("last_event")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < -1 {
		return 0, apperr.Validation("last_event must be an event index")
	}
	return n + 1, nil
}
