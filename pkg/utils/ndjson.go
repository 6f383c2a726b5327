package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// SetupStreamHeaders prepares a chunked newline-delimited JSON response.
func SetupStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
}

// WriteJSONLine writes one newline-terminated JSON object and flushes it so
// the client sees the line immediately.
func WriteJSONLine(w http.ResponseWriter, flusher http.Flusher, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal stream payload: %v", err)
		return
	}

	if _, err := w.Write(data); err != nil {
		log.Printf("failed to write stream payload: %v", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Printf("failed to write stream terminator: %v", err)
		return
	}
	flusher.Flush()
}
