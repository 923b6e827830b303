package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/jghoshh/missioncenter/backend/graph"
	"github.com/jghoshh/missioncenter/backend/storage/persistent"
)

// apiError is an error with the HTTP status it should be reported with.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func newAPIError(status int, msg string) *apiError {
	return &apiError{status: status, msg: msg}
}

func badRequest(msg string) *apiError {
	return newAPIError(http.StatusBadRequest, msg)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

// writeText writes a plain-text body, logging failed writes like writeJSON.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		log.Printf("error writing response: %v", err)
	}
}

// writeError maps err to a status code and writes {"error": msg}.
// Unexpected errors are logged and reported without detail.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.status, map[string]string{"error": apiErr.msg})
	case errors.Is(err, graph.ErrInvalidProgress), errors.Is(err, graph.ErrInvalidLimit):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrNotApplied):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrAlreadyApplied):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("request failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}
