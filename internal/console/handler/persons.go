package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/attendance-engine/internal/domain"
)

// PersonService — реестр лиц
type PersonService interface {
	List() []domain.Person
	Register(ctx context.Context, p domain.Person) (domain.Person, error)
	Remove(ctx context.Context, id string) error
}

type PersonHandler struct {
	service PersonService
}

func NewPersonHandler(s PersonService) *PersonHandler {
	return &PersonHandler{service: s}
}

// List возвращает всех зарегистрированных людей
func (h *PersonHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}

// Create регистрирует человека (или обновляет имя существующего)
func (h *PersonHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p domain.Person
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	saved, err := h.service.Register(r.Context(), p)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// Delete удаляет человека из реестра. Записи посещаемости остаются.
func (h *PersonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Person ID is required")
		return
	}
	if err := h.service.Remove(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
