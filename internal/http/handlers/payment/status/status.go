// Package status реализует HTTP-обработчик чтения статуса платежа.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/response"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

type Handler struct {
	log      *slog.Logger
	service  Service
	explorer ExplorerLinker
}

type Service interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	GetStatus(ctx context.Context, paymentID string) (*models.PaymentStatusInfo, error)
}

// ExplorerLinker строит ссылку на транзакцию в обозревателе сети.
type ExplorerLinker interface {
	ExplorerURL(txHash string) string
}

func New(log *slog.Logger, service Service, explorer ExplorerLinker) *Handler {
	return &Handler{log: log, service: service, explorer: explorer}
}

// ServeHTTP обрабатывает запрос статуса платежа.
//
// @Summary      Статус платежа
// @Tags         payments
// @Produce      json
// @Security     ApiKeyAuth
// @Param        id path string true "Идентификатор платежа"
// @Success      200 {object} response.Response
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/payments/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.status.New"

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

	info, err := h.service.GetStatus(r.Context(), paymentID)
	if err != nil {
		log.Error("failed to get payment status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get payment status"))
		return
	}

	explorerURL := ""
	if info.TxHash != nil {
		explorerURL = h.explorer.ExplorerURL(*info.TxHash)
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"payment":      info,
		"explorer_url": explorerURL,
	}))
}
