package handlers

import (
	"encoding/json"
	"net/http"

	"wardrobe-storage/internal/logging"
)

// writeJSON encodes v as JSON and writes it with the given status code.
// Encoding errors are logged since the response is already committed.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
