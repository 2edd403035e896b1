// login.go — обработчик POST /login.
// Выпускает JWT-токен по учётным данным клиента.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/insurance-api/internal/api/errors"
	"github.com/bigkaa/insurance-api/internal/service"
)

// loginRequest — тело запроса POST /login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse — тело ответа с выпущенным токеном.
type loginResponse struct {
	Token string `json:"token"`
}

// Login — POST /login.
// 200 {token} | 400 (некорректные/неизвестные учётные данные) |
// 401 (неверный пароль) | 502 (источник недоступен).
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingCredentials):
			apierrors.ValidationError(w, "Требуются email и password")
		case errors.Is(err, service.ErrUnknownPrincipal):
			apierrors.ValidationError(w, "Клиент с указанным email не найден")
		case errors.Is(err, service.ErrInvalidCredentials):
			apierrors.Unauthorized(w, "Неверный пароль")
		default:
			h.writeSourceError(w, r, err)
		}
		return
	}

	h.logger.Info("Выпущен токен",
		slog.String("email", req.Email),
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}
