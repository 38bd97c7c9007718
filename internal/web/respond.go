package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"clubsync/internal/sync"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeSyncError maps the engine's error taxonomy onto HTTP statuses.
func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sync.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sync.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sync.ErrNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sync.ErrInactive):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
