package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-marketplace/internal/logger"
)

func setupHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// Stream writes every value from ch as an SSE frame named event until the
// channel closes or the request context is done.
func Stream[T any](w http.ResponseWriter, r *http.Request, event string, ch <-chan T, log *logger.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupHeaders(w)
	fmt.Fprint(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				log.Error("SSE", fmt.Sprintf("Failed to serialize %s event: %v", event, err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
			flusher.Flush()
		case <-ctx.Done():
			log.Debug("SSE", fmt.Sprintf("Client disconnected from %s stream", event))
			return
		}
	}
}
