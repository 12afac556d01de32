package httpapi

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError writes the uniform denial envelope. The request identifier is
// echoed from the header set by the RequestID middleware so clients can quote
// it in support requests.
func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": w.Header().Get(requestIDHeader),
	})
}
