package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/highbeam/teamd/internal/store"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeStoreError maps a store operation's error to its wire shape. Errors
// that are not a *store.Error are internal failures and are never leaked
// as raw Go error strings.
func writeStoreError(w http.ResponseWriter, err error) {
	if se, ok := err.(*store.Error); ok {
		writeErrorCode(w, se.HTTPStatus, se.Code, se.Message)
		return
	}
	writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func notFound(w http.ResponseWriter) {
	writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", "no such route")
}

func invalidJSON(w http.ResponseWriter) {
	writeErrorCode(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
}
