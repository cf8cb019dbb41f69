package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vijaygupta18/multidb/internal/model"
)

func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.engine.Status(id)
	if !ok || !canView(r, rec.OwnerID) {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// A cancelled execution may still have targets winding down, so only a
	// record that is terminal and no longer active ends the stream up front.
	if model.IsTerminal(rec.Status) && !s.isActive(id) {
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, "done", rec.Status)
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribing after the execution finished yields a closed channel, so
	// the loop below exits immediately.
	ch, unsub := s.engine.Broker().Subscribe(id)
	defer unsub()
	eventStreamsOpen.Inc()
	defer eventStreamsOpen.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				status := ""
				if rec, ok := s.engine.Status(id); ok {
					status = rec.Status
				}
				_ = writeSSEEvent(w, "done", status)
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeSSEJSON(w, ev.Type, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

func (s *Server) isActive(id string) bool {
	for _, a := range s.engine.ListActive() {
		if a.ID == id {
			return true
		}
	}
	return false
}

// writeSSEJSON writes v as the JSON data of a named SSE event.
func writeSSEJSON(w http.ResponseWriter, eventType string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeSSEEvent(w, eventType, string(b))
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
