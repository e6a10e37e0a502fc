package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/example/marketplace-ledger/internal/api/middleware"
	"github.com/example/marketplace-ledger/internal/apperr"
)

// IdempotencyHeader carries the client's transaction id for money movements
const IdempotencyHeader = "Idempotency-Key"

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps err onto its HTTP status. Unclassified errors are logged
// and hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v request_id=%s", r.Method, r.URL.Path, err, middleware.RequestID(r.Context()))
		msg = "internal error"
	}
	respondJSON(w, status, errorResponse{Error: msg, Kind: apperr.Kind(err)})
}

// decodeJSON reads the request body into v. An empty body leaves v unchanged.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed request body: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}

// idempotencyKey prefers the id in the body and falls back to the header
func idempotencyKey(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(IdempotencyHeader)
}
