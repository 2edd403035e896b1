// policies.go — обработчики cross-entity запросов по полисам.
// Доступ: только admin (настраивается в маршрутах сервера).
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetClientByPolicy — GET /policies/by_policy/{value}.
// Возвращает клиента-владельца указанного полиса.
func (h *APIHandler) GetClientByPolicy(w http.ResponseWriter, r *http.Request) {
	client, err := h.lookup.ClientByPolicy(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// GetPoliciesByClientName — GET /policies/by_client_name/{value}.
// Возвращает все полисы клиента с указанным именем.
func (h *APIHandler) GetPoliciesByClientName(w http.ResponseWriter, r *http.Request) {
	policies, err := h.lookup.PoliciesByClientName(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, policies)
}
