// Package loginstart реализует HTTP-обработчик начала церемонии входа по passkey.
package loginstart

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/services/passkey"
)

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

type Service interface {
	BeginAuthentication(ctx context.Context, userUID string) (*protocol.CredentialAssertion, error)
}

// Request тело запроса начала входа.
type Request struct {
	UserUID string `json:"user_uid" validate:"required,uuid"`
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает запрос начала входа по passkey.
//
// @Summary      Начало входа по passkey
// @Description  Генерирует челлендж для navigator.credentials.get. Список allowCredentials пустой: ключ discoverable.
// @Tags         passkey
// @Accept       json
// @Produce      json
// @Param        request body Request true "Идентификатор пользователя"
// @Success      200 {object} response.Response
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/auth/passkey/login/start [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.passkey.loginstart.New"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	options, err := h.service.BeginAuthentication(r.Context(), req.UserUID)
	if errors.Is(err, passkey.ErrNoCredentials) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("no passkey registered for this user"))
		return
	}
	if err != nil {
		log.Error("failed to begin authentication", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not begin authentication"))
		return
	}

	log.Info("authentication ceremony started", slog.String("user_uid", req.UserUID))
	render.JSON(w, r, response.StatusOKWithData(options))
}
