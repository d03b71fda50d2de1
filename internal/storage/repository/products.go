package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/passkey-paywall/internal/models"
)

// GetProduct возвращает товар по его UID.
func (s *Storage) GetProduct(ctx context.Context, productUID string) (*models.Product, error) {
	const op = "repository.GetProduct"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, name, description, price, currency, type, content_url, thumbnail_url, created_at
			  FROM products
			  WHERE uid = $1`
	row := s.DB.QueryRowContext(ctx, query, productUID)
	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return p, nil
}

// ListProducts возвращает все товары, новые первыми.
func (s *Storage) ListProducts(ctx context.Context) ([]*models.Product, error) {
	const op = "repository.ListProducts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid, name, description, price, currency, type, content_url, thumbnail_url, created_at
			  FROM products
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpsertProductByName создает товар или обновляет существующий с тем же
// именем. Используется для загрузки демонстрационного каталога.
func (s *Storage) UpsertProductByName(ctx context.Context, p models.Product) (string, error) {
	const op = "repository.UpsertProductByName"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO products (name, description, price, currency, type, content_url, thumbnail_url)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (name) DO UPDATE
			  SET description = EXCLUDED.description,
			      price = EXCLUDED.price,
			      currency = EXCLUDED.currency,
			      type = EXCLUDED.type,
			      content_url = EXCLUDED.content_url,
			      thumbnail_url = EXCLUDED.thumbnail_url
			  RETURNING uid`
	var uid string
	if err := s.DB.QueryRowContext(ctx, query,
		p.Name, p.Description, p.Price, p.Currency, p.Type, p.ContentURL, p.ThumbnailURL).Scan(&uid); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	var description, contentURL, thumbnailURL sql.NullString
	if err := row.Scan(&p.UID, &p.Name, &description, &p.Price, &p.Currency,
		&p.Type, &contentURL, &thumbnailURL, &p.CreatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		p.Description = &description.String
	}
	if contentURL.Valid {
		p.ContentURL = &contentURL.String
	}
	if thumbnailURL.Valid {
		p.ThumbnailURL = &thumbnailURL.String
	}
	return p, nil
}
