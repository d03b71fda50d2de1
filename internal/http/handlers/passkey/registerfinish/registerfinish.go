// Package registerfinish реализует HTTP-обработчик завершения церемонии
// регистрации passkey. Успешная регистрация сразу открывает сессию.
package registerfinish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/services/passkey"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

type Handler struct {
	log      *slog.Logger
	passkeys PasskeyService
	sessions SessionService
	validate *validator.Validate
}

type PasskeyService interface {
	FinishRegistration(ctx context.Context, userUID string, response io.Reader) (*models.Credential, error)
}

type SessionService interface {
	CreateSession(ctx context.Context, userUID string) (*models.Session, error)
}

// Request тело запроса завершения регистрации: идентификатор пользователя
// и необработанный ответ аутентификатора.
type Request struct {
	UserUID    string          `json:"user_uid" validate:"required,uuid"`
	Credential json.RawMessage `json:"credential" validate:"required"`
}

func New(log *slog.Logger, passkeys PasskeyService, sessions SessionService) *Handler {
	return &Handler{
		log:      log,
		passkeys: passkeys,
		sessions: sessions,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает запрос завершения регистрации passkey.
//
// @Summary      Завершение регистрации passkey
// @Description  Проверяет ответ аутентификатора, сохраняет passkey и открывает сессию.
// @Tags         passkey
// @Accept       json
// @Produce      json
// @Param        request body Request true "Идентификатор пользователя и ответ аутентификатора"
// @Success      201 {object} response.Response
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/auth/passkey/register/finish [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.passkey.registerfinish.New"

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

	cred, err := h.passkeys.FinishRegistration(r.Context(), req.UserUID, bytes.NewReader(req.Credential))
	switch {
	case errors.Is(err, passkey.ErrChallengeNotFound):
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("challenge not found or expired"))
		return
	case errors.Is(err, passkey.ErrVerificationFailed):
		log.Error("credential verification failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("credential verification failed"))
		return
	case errors.Is(err, storage.ErrConflict):
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("credential already registered"))
		return
	case err != nil:
		log.Error("failed to finish registration", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not finish registration"))
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), req.UserUID)
	if err != nil {
		log.Error("failed to create session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create session"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middlewarectx.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	log.Info("passkey registered and session created",
		slog.String("user_uid", req.UserUID),
		slog.String("credential_id", cred.CredentialID))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"credential_id": cred.CredentialID,
		"session_token": session.Token,
	}))
}
