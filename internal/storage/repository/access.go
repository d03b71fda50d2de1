package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/passkey-paywall/internal/models"
)

// UpsertAccessGrant выдает право доступа на пару (пользователь, товар).
// Повторная выдача обновляет granted_at и payment_id, не создавая дубликата.
func (s *Storage) UpsertAccessGrant(ctx context.Context, userUID, productUID string, paymentID *string) error {
	const op = "repository.UpsertAccessGrant"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO access_grants (user_uid, product_uid, payment_id, granted_at)
			  VALUES ($1, $2, $3, NOW())
			  ON CONFLICT (user_uid, product_uid) DO UPDATE
			  SET payment_id = EXCLUDED.payment_id,
			      granted_at = NOW()`
	if _, err := s.DB.ExecContext(ctx, query, userUID, productUID, paymentID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HasAccess сообщает, есть ли у пользователя право на товар.
func (s *Storage) HasAccess(ctx context.Context, userUID, productUID string) (bool, error) {
	const op = "repository.HasAccess"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS(
			      SELECT 1 FROM access_grants
			      WHERE user_uid = $1 AND product_uid = $2
			  )`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userUID, productUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// GetAccessGrant возвращает право доступа на пару (пользователь, товар).
func (s *Storage) GetAccessGrant(ctx context.Context, userUID, productUID string) (*models.AccessGrant, error) {
	const op = "repository.GetAccessGrant"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, product_uid, payment_id, granted_at
			  FROM access_grants
			  WHERE user_uid = $1 AND product_uid = $2`
	grant := &models.AccessGrant{}
	var paymentID sql.NullString
	row := s.DB.QueryRowContext(ctx, query, userUID, productUID)
	if err := row.Scan(&grant.UserUID, &grant.ProductUID, &paymentID, &grant.GrantedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	if paymentID.Valid {
		grant.PaymentID = &paymentID.String
	}
	return grant, nil
}

// ListAccessibleProducts возвращает товары, доступные пользователю.
func (s *Storage) ListAccessibleProducts(ctx context.Context, userUID string) ([]*models.Product, error) {
	const op = "repository.ListAccessibleProducts"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT p.uid, p.name, p.description, p.price, p.currency, p.type,
			      p.content_url, p.thumbnail_url, p.created_at
			  FROM access_grants g
			  JOIN products p ON p.uid = g.product_uid
			  WHERE g.user_uid = $1
			  ORDER BY g.granted_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
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
