// Package content реализует HTTP-обработчик выдачи платного контента.
// Ссылка на контент возвращается только при наличии права доступа.
package content

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
	log     *slog.Logger
	service Service
}

type Service interface {
	GetProduct(ctx context.Context, uid string) (*models.Product, error)
	CheckAccess(ctx context.Context, userUID, productUID string) (bool, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP обрабатывает запрос платного контента.
//
// @Summary      Контент продукта
// @Description  Возвращает ссылку на контент, если пользователь оплатил продукт.
// @Tags         products
// @Produce      json
// @Security     ApiKeyAuth
// @Param        uid path string true "Идентификатор продукта"
// @Success      200 {object} response.Response
// @Failure      401 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/products/{uid}/content [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.product.content.New"

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

	productUID := chi.URLParam(r, "uid")

	product, err := h.service.GetProduct(r.Context(), productUID)
	if errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("product not found"))
		return
	}
	if err != nil {
		log.Error("failed to get product", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get product"))
		return
	}

	hasAccess, err := h.service.CheckAccess(r.Context(), userUID, product.UID)
	if err != nil {
		log.Error("failed to check access", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check access"))
		return
	}
	if !hasAccess {
		log.Info("access denied",
			slog.String("user_uid", userUID),
			slog.String("product_uid", product.UID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("product not purchased"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"product_uid": product.UID,
		"name":        product.Name,
		"type":        product.Type,
		"content_url": product.ContentURL,
	}))
}
