// Package initiate реализует HTTP-обработчик создания платежа. Успешный
// ответ имеет статус 402 Payment Required и содержит дескриптор оплаты.
package initiate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

type Handler struct {
	log                 *slog.Logger
	payments            PaymentService
	access              AccessChecker
	allowRepeatPurchase bool
	validate            *validator.Validate
}

type PaymentService interface {
	Initiate(ctx context.Context, userUID, productUID string) (*models.PaymentDescriptor, error)
}

type AccessChecker interface {
	CheckAccess(ctx context.Context, userUID, productUID string) (bool, error)
}

// Request тело запроса создания платежа.
type Request struct {
	ProductUID string `json:"product_uid" validate:"required,uuid"`
}

func New(log *slog.Logger, payments PaymentService, access AccessChecker, allowRepeatPurchase bool) *Handler {
	return &Handler{
		log:                 log,
		payments:            payments,
		access:              access,
		allowRepeatPurchase: allowRepeatPurchase,
		validate:            validator.New(),
	}
}

// ServeHTTP обрабатывает запрос создания платежа.
//
// @Summary      Инициация платежа
// @Description  Создает платеж в статусе pending и возвращает 402 с дескриптором оплаты.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        request body Request true "Идентификатор продукта"
// @Success      402 {object} response.Response
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/payments/initiate [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.initiate.New"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

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

	if !h.allowRepeatPurchase {
		hasAccess, err := h.access.CheckAccess(r.Context(), userUID, req.ProductUID)
		if err != nil {
			log.Error("failed to check access", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not check access"))
			return
		}
		if hasAccess {
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error("product already purchased"))
			return
		}
	}

	descriptor, err := h.payments.Initiate(r.Context(), userUID, req.ProductUID)
	if errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("product not found"))
		return
	}
	if err != nil {
		log.Error("failed to initiate payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not initiate payment"))
		return
	}

	log.Info("payment initiated",
		slog.String("payment_id", descriptor.PaymentID),
		slog.String("user_uid", userUID))
	w.WriteHeader(http.StatusPaymentRequired)
	render.JSON(w, r, response.StatusOKWithData(descriptor))
}
