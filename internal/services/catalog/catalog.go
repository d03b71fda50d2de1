// Package catalog реализует бизнес-логику каталога цифровых продуктов
// и проверки прав доступа к контенту.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/passkey-paywall/internal/models"
)

// Cache интерфейс кэша продуктов.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// ProductRepository интерфейс репозитория продуктов.
type ProductRepository interface {
	GetProduct(ctx context.Context, uid string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]*models.Product, error)
	UpsertProductByName(ctx context.Context, product models.Product) (string, error)
}

// AccessRepository интерфейс репозитория прав доступа.
type AccessRepository interface {
	HasAccess(ctx context.Context, userUID, productUID string) (bool, error)
	ListAccessibleProducts(ctx context.Context, userUID string) ([]*models.Product, error)
}

// CatalogService реализует бизнес-логику каталога.
type CatalogService struct {
	products ProductRepository
	access   AccessRepository
	cache    Cache
	log      *slog.Logger
}

func New(products ProductRepository, access AccessRepository, cache Cache, log *slog.Logger) *CatalogService {
	return &CatalogService{
		products: products,
		access:   access,
		cache:    cache,
		log:      log,
	}
}

// GetProduct возвращает продукт, сначала проверяя кэш.
func (s *CatalogService) GetProduct(ctx context.Context, uid string) (*models.Product, error) {
	cacheKey := "product:" + uid

	var cached models.Product
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read product from cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	if found {
		return &cached, nil
	}

	product, err := s.products.GetProduct(ctx, uid)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(cacheKey, product, time.Hour); err != nil {
		s.log.Warn("failed to cache product", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return product, nil
}

// ListProducts возвращает каталог продуктов, новые первыми.
func (s *CatalogService) ListProducts(ctx context.Context) ([]*models.Product, error) {
	return s.products.ListProducts(ctx)
}

// CheckAccess проверяет право пользователя на доступ к продукту.
func (s *CatalogService) CheckAccess(ctx context.Context, userUID, productUID string) (bool, error) {
	return s.access.HasAccess(ctx, userUID, productUID)
}

// ListAccessibleProducts возвращает продукты, доступные пользователю.
func (s *CatalogService) ListAccessibleProducts(ctx context.Context, userUID string) ([]*models.Product, error) {
	return s.access.ListAccessibleProducts(ctx, userUID)
}

func strptr(s string) *string { return &s }

// Seed наполняет каталог демонстрационными продуктами. Повторный вызов
// обновляет существующие записи по имени.
func (s *CatalogService) Seed(ctx context.Context) error {
	demo := []models.Product{
		{
			Name:         "Premium Article: The Future of AI",
			Description:  strptr("An in-depth look at where generative AI is heading and its impact on society."),
			Price:        0.00001,
			Currency:     "AVAX",
			Type:         "article",
			ContentURL:   strptr("https://example.com/articles/ai-future"),
			ThumbnailURL: strptr("https://picsum.photos/seed/ai/400/300"),
		},
		{
			Name:         "Digital Art: Space",
			Description:  strptr("High-resolution space-themed digital art, perfect for wallpapers and prints."),
			Price:        0.00001,
			Currency:     "AVAX",
			Type:         "image",
			ContentURL:   strptr("https://example.com/images/space.png"),
			ThumbnailURL: strptr("https://picsum.photos/seed/space/400/300"),
		},
		{
			Name:         "Lo-Fi Focus Music",
			Description:  strptr("Relaxing lo-fi background music to help you concentrate."),
			Price:        0.00001,
			Currency:     "AVAX",
			Type:         "music",
			ContentURL:   strptr("https://example.com/music/lofi.mp3"),
			ThumbnailURL: strptr("https://picsum.photos/seed/music/400/300"),
		},
	}

	for _, product := range demo {
		uid, err := s.products.UpsertProductByName(ctx, product)
		if err != nil {
			return err
		}
		if err := s.cache.Invalidate("product:" + uid); err != nil {
			s.log.Warn("failed to invalidate product cache", slog.Any("err", err))
		}
	}
	s.log.Info("catalog seeded", slog.Int("count", len(demo)))
	return nil
}
