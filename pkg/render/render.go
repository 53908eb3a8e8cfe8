// Package render writes HTTP responses as JSON or, when the client asks for
// it, msgpack.
package render

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Content types understood by Respond.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error   string `json:"error" msgpack:"error"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// WantsMsgpack reports whether the request's Accept header prefers msgpack.
func WantsMsgpack(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, ContentTypeMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// Respond encodes data with the content type negotiated from r.
func Respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if r != nil && WantsMsgpack(r) {
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(status)
		if err := msgpack.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode msgpack response")
		}
		return
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Error writes an ErrorBody.
func Error(w http.ResponseWriter, r *http.Request, status int, message string, details string) {
	Respond(w, r, status, ErrorBody{Error: message, Details: details})
}
