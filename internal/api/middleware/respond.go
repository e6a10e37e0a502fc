package middleware

import (
	"encoding/json"
	"net/http"
)

// respondError writes the same {"error","kind"} body the handlers use
func respondError(w http.ResponseWriter, message, kind string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": kind})
}
