// Package lookup реализует HTTP-обработчик поиска пользователя по email
// перед началом церемонии входа.
package lookup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

type Service interface {
	LookupUser(ctx context.Context, email string) (*models.User, error)
}

// Request тело запроса поиска пользователя.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает запрос поиска пользователя.
//
// @Summary      Поиск пользователя по email
// @Description  Возвращает идентификатор пользователя для начала церемонии входа.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body Request true "Email пользователя"
// @Success      200 {object} response.Response
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/auth/lookup [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.lookup.New"

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

	user, err := h.service.LookupUser(r.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	}
	if err != nil {
		log.Error("failed to lookup user", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not lookup user"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"user_uid": user.UID,
	}))
}
