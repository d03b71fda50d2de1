// Package reconcile реализует HTTP-обработчик сверки платежа с состоянием
// блокчейн-сети. Используется, когда расчет был прерван и платеж завис
// в processing.
package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/services/payment"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	Reconcile(ctx context.Context, paymentID, txHash string) (*models.Payment, error)
}

// Request тело запроса сверки. Хэш транзакции опционален: без него
// используется хэш, сохраненный у платежа.
type Request struct {
	TxHash string `json:"transaction_hash,omitempty"`
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP обрабатывает запрос сверки платежа.
//
// @Summary      Сверка платежа
// @Description  Доводит зависший в processing платеж до конечного статуса по данным сети.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id path string true "Идентификатор платежа"
// @Param        request body Request false "Хэш транзакции"
// @Success      200 {object} response.Response
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Router       /api/payments/{id}/complete [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.reconcile.New"

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

	// тело опционально
	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
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
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("payment not found"))
		return
	}

	reconciled, err := h.service.Reconcile(r.Context(), paymentID, req.TxHash)
	if errors.Is(err, payment.ErrSettlementFailed) {
		log.Error("reconcile found reverted transaction", slog.String("payment_id", paymentID))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("transaction reverted, payment marked as failed"))
		return
	}
	if err != nil {
		log.Error("failed to reconcile payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not reconcile payment"))
		return
	}

	log.Info("payment reconciled",
		slog.String("payment_id", paymentID),
		slog.String("status", reconciled.Status))
	render.JSON(w, r, response.StatusOKWithData(reconciled))
}
