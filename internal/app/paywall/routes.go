// Package paywall собирает приложение: хранилище, кэш, блокчейн-клиент,
// сервисы и HTTP-маршруты.
package paywall

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/auth/lookup"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/auth/me"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/health"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/passkey/loginfinish"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/passkey/loginstart"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/passkey/registerfinish"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/passkey/registerstart"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/payment/history"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/payment/initiate"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/payment/process"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/payment/reconcile"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/payment/status"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/product/content"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/product/list"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/product/purchased"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/handlers/product/read"
	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/ledger"

	"github.com/magabrotheeeer/passkey-paywall/internal/config"
	authservice "github.com/magabrotheeeer/passkey-paywall/internal/services/auth"
	catalogservice "github.com/magabrotheeeer/passkey-paywall/internal/services/catalog"
	passkeyservice "github.com/magabrotheeeer/passkey-paywall/internal/services/passkey"
	paymentservice "github.com/magabrotheeeer/passkey-paywall/internal/services/payment"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	authService *authservice.AuthService,
	passkeyService *passkeyservice.Service,
	catalogService *catalogservice.CatalogService,
	paymentService *paymentservice.Service,
	ledgerClient *ledger.Client) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Get("/health", health.New(logger).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		// Открытые конечные точки: регистрация и церемонии WebAuthn
		r.Post("/auth/register", register.New(logger, authService).ServeHTTP)
		r.Post("/auth/lookup", lookup.New(logger, authService).ServeHTTP)
		r.Post("/auth/passkey/register/start", registerstart.New(logger, passkeyService).ServeHTTP)
		r.Post("/auth/passkey/register/finish", registerfinish.New(logger, passkeyService, authService).ServeHTTP)
		r.Post("/auth/passkey/login/start", loginstart.New(logger, passkeyService).ServeHTTP)
		r.Post("/auth/passkey/login/finish", loginfinish.New(logger, passkeyService, authService).ServeHTTP)

		// Каталог доступен без сессии, но с ней показывает права доступа
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.OptionalSessionMiddleware(authService, logger))
			r.Get("/products", list.New(logger, catalogService).ServeHTTP)
			r.Get("/products/{uid}", read.New(logger, catalogService).ServeHTTP)
		})

		// Группа с обязательной сессией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.SessionMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/auth/me", me.New(logger, authService).ServeHTTP)
			r.Post("/auth/logout", logout.New(logger, authService).ServeHTTP)
			r.Get("/products/purchased", purchased.New(logger, catalogService).ServeHTTP)
			r.Get("/products/{uid}/content", content.New(logger, catalogService).ServeHTTP)
			r.Post("/payments/initiate", initiate.New(logger, paymentService, catalogService, cfg.AllowRepeatPurchase).ServeHTTP)
			r.Post("/payments/{id}/process", process.New(logger, paymentService, ledgerClient).ServeHTTP)
			r.Post("/payments/{id}/complete", reconcile.New(logger, paymentService).ServeHTTP)
			r.Get("/payments/{id}", status.New(logger, paymentService, ledgerClient).ServeHTTP)
			r.Get("/payments", history.New(logger, paymentService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
