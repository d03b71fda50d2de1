package paywall

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/magabrotheeeer/passkey-paywall/internal/cache"
	"github.com/magabrotheeeer/passkey-paywall/internal/challenge"
	"github.com/magabrotheeeer/passkey-paywall/internal/config"
	"github.com/magabrotheeeer/passkey-paywall/internal/ledger"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/passkey-paywall/internal/migrations"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage/repository"

	authservice "github.com/magabrotheeeer/passkey-paywall/internal/services/auth"
	catalogservice "github.com/magabrotheeeer/passkey-paywall/internal/services/catalog"
	passkeyservice "github.com/magabrotheeeer/passkey-paywall/internal/services/passkey"
	paymentservice "github.com/magabrotheeeer/passkey-paywall/internal/services/payment"
)

type App struct {
	server    *http.Server
	logger    *slog.Logger
	db        *repository.Storage
	ledger    *ledger.Client
	publisher *rabbitmq.Publisher
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPName,
		RPID:          cfg.RPID,
		RPOrigins:     []string{cfg.RPOrigin},
	})
	if err != nil {
		return nil, err
	}

	ledgerClient, err := ledger.New(cfg.Chain, logger)
	if err != nil {
		return nil, err
	}

	var publisher *rabbitmq.Publisher
	var events paymentservice.EventPublisher
	if cfg.RabbitURL != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.Exchange)
		if err != nil {
			return nil, err
		}
		events = publisher
	}

	challenges := challenge.NewRedisStore(cacheRedis.Db, cfg.ChallengeTTL)

	authService := authservice.New(db, db, cfg.SessionTTL, logger)
	passkeyService := passkeyservice.New(wa, db, db, challenges, logger)
	catalogService := catalogservice.New(db, db, cacheRedis, logger)
	paymentService := paymentservice.New(db, db, db, ledgerClient, events, cfg.DescriptorTTL, logger)

	if err := catalogService.Seed(ctx); err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, authService, passkeyService, catalogService, paymentService, ledgerClient)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:    srv,
		logger:    logger,
		db:        db,
		ledger:    ledgerClient,
		publisher: publisher,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if a.publisher != nil {
			if cerr := a.publisher.Close(); cerr != nil {
				a.logger.Warn("failed to close rabbitmq publisher", slog.Any("err", cerr))
			}
		}
		a.ledger.Close()
		if cerr := a.db.Close(); cerr != nil {
			a.logger.Warn("failed to close storage", slog.Any("err", cerr))
		}
		return err
	}
}
