package http

import (
	"encoding/json"
	"strings"

	nethttp "net/http"

	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// ClientIDHeader partitions drafts and sessions between callers. It is
// an identifier, not a credential.
const ClientIDHeader = "X-Client-ID"

const maxBody = 1 << 20

// ClientID returns the caller's partition id.
func ClientID(r *nethttp.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}
	return "anonymous"
}

func writeJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type failure struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Errors  survey.ErrorMap `json:"errors,omitempty"`
}

func writeFailure(w nethttp.ResponseWriter, status int, msg string, errs survey.ErrorMap) {
	writeJSON(w, status, failure{Error: msg, Errors: errs})
}

func decodeJSON(w nethttp.ResponseWriter, r *nethttp.Request, v any) error {
	return json.NewDecoder(nethttp.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
}
