// clients.go — обработчики поиска клиентов.
// Маршруты /clients/... и /users/... обслуживаются одними и теми же
// обработчиками: /users — исторический алиас /clients.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetClientByName — GET /clients/name/{value}.
// Поиск клиента по имени (без учёта регистра, первый по порядку ключей).
func (h *APIHandler) GetClientByName(w http.ResponseWriter, r *http.Request) {
	client, err := h.lookup.ClientByName(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// GetClientByID — GET /clients/id/{value}.
func (h *APIHandler) GetClientByID(w http.ResponseWriter, r *http.Request) {
	client, err := h.lookup.ClientByID(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// GetClientByEmail — GET /clients/email/{value}.
func (h *APIHandler) GetClientByEmail(w http.ResponseWriter, r *http.Request) {
	client, err := h.lookup.ClientByEmail(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// GetClientsByRole — GET /clients/role/{value}.
// Возвращает ВСЕХ клиентов с указанной ролью.
func (h *APIHandler) GetClientsByRole(w http.ResponseWriter, r *http.Request) {
	clients, err := h.lookup.ClientsByRole(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}
