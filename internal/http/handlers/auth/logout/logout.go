// Package logout реализует HTTP-обработчик завершения сессии.
package logout

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	Logout(ctx context.Context, token string) error
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP обрабатывает запрос выхода: удаляет сессию и сбрасывает cookie.
// Повторный выход с тем же токеном не считается ошибкой.
//
// @Summary      Выход
// @Tags         auth
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200 {object} response.Response
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/auth/logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.logout.New"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token := ""
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	} else if cookie, err := r.Cookie(middlewarectx.SessionCookie); err == nil {
		token = cookie.Value
	}

	if token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			log.Error("failed to delete session", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not logout"))
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewarectx.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	log.Info("session closed")
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"logged_out": true,
	}))
}
