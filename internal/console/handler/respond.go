package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/attendance-engine/internal/domain"
)

// errorBody — единый формат ошибки API
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError переводит ошибки ядра в HTTP-коды
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidWindow), errors.Is(err, domain.ErrInvalidPerson):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownPerson), errors.Is(err, domain.ErrPersonNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
