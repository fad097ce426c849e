package common

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func WriteError(w http.ResponseWriter, text string, statusCode int) {
	WriteKindError(w, text, "", statusCode)
}

// WriteKindError also reports the failure class so clients can react to
// it without parsing the message.
func WriteKindError(w http.ResponseWriter, text, kind string, statusCode int) {
	WriteJSON(w, errorResponse{Error: text, Kind: kind}, statusCode)
}

func WriteJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}
