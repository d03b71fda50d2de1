// Package process реализует HTTP-обработчик оплаты: переводит платеж
// в processing и выполняет расчет в блокчейн-сети.
package process

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/services/payment"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

type Handler struct {
	log      *slog.Logger
	service  Service
	explorer ExplorerLinker
	validate *validator.Validate
}

type Service interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	BeginProcessing(ctx context.Context, paymentID, method string) error
	Settle(ctx context.Context, paymentID string) (*models.Payment, error)
}

// ExplorerLinker строит ссылку на транзакцию в обозревателе сети.
type ExplorerLinker interface {
	ExplorerURL(txHash string) string
}

// Request тело запроса оплаты.
type Request struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=wallet mock"`
}

func New(log *slog.Logger, service Service, explorer ExplorerLinker) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		explorer: explorer,
		validate: validator.New(),
	}
}

// ServeHTTP обрабатывает запрос оплаты.
//
// @Summary      Оплата
// @Description  Переводит платеж в processing, выполняет расчет в сети и при подтверждении выдает доступ.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id path string true "Идентификатор платежа"
// @Param        request body Request true "Способ оплаты"
// @Success      200 {object} response.Response
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/payments/{id}/process [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.process.New"

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

	paymentID := chi.URLParam(r, "id")
	if !strings.HasPrefix(paymentID, models.PaymentIDPrefix) {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid payment id"))
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

	p, err := h.service.GetPayment(r.Context(), paymentID)
	if errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("payment not found"))
		return
	}
	if err != nil {
		log.Error("failed to get payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get payment"))
		return
	}
	if p.UserUID != userUID {
		// чужой платеж неотличим от несуществующего
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("payment not found"))
		return
	}

	err = h.service.BeginProcessing(r.Context(), paymentID, req.PaymentMethod)
	if errors.Is(err, storage.ErrInvalidState) {
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("payment is not pending"))
		return
	}
	if err != nil {
		log.Error("failed to begin processing", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not process payment"))
		return
	}

	settled, err := h.service.Settle(r.Context(), paymentID)
	if errors.Is(err, payment.ErrSettlementFailed) {
		log.Error("settlement failed", slog.String("payment_id", paymentID), sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("settlement failed, payment marked as failed"))
		return
	}
	if err != nil {
		log.Error("failed to settle payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not settle payment"))
		return
	}

	explorerURL := ""
	if settled.TxHash != nil {
		explorerURL = h.explorer.ExplorerURL(*settled.TxHash)
	}

	log.Info("payment settled",
		slog.String("payment_id", paymentID),
		slog.String("status", settled.Status))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"payment":      settled,
		"explorer_url": explorerURL,
	}))
}
