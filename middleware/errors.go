package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/tenantauth"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    tenantauth.Code `json:"code"`
	Message string          `json:"message"`
}

// WriteError renders err as {"error":{"code","message"}}. Errors outside
// the taxonomy are classified first and never expose their text.
func WriteError(w http.ResponseWriter, err error) {
	e := tenantauth.AsError(err)
	if e == nil {
		e = tenantauth.ErrInternal
	}
	if e.Code == tenantauth.CodeRateLimited {
		w.Header().Set("Retry-After", "60")
	}
	WriteJSON(w, e.Status, errorBody{Error: errorDetail{Code: e.Code, Message: e.Message}})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
