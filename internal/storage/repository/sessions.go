package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/passkey-paywall/internal/models"
)

// CreateSession сохраняет новую сессию пользователя.
func (s *Storage) CreateSession(ctx context.Context, session models.Session) error {
	const op = "repository.CreateSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO sessions (token, user_uid, expires_at)
			  VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, query,
		session.Token, session.UserUID, session.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetSession возвращает сессию по токену.
func (s *Storage) GetSession(ctx context.Context, token string) (*models.Session, error) {
	const op = "repository.GetSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT token, user_uid, expires_at
			  FROM sessions
			  WHERE token = $1`
	session := &models.Session{}
	row := s.DB.QueryRowContext(ctx, query, token)
	if err := row.Scan(&session.Token, &session.UserUID, &session.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return session, nil
}

// DeleteSessions удаляет все сессии с данным токеном.
// Удаление несуществующего токена не является ошибкой.
func (s *Storage) DeleteSessions(ctx context.Context, token string) error {
	const op = "repository.DeleteSessions"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM sessions WHERE token = $1`
	if _, err := s.DB.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
