package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

// ListCredentialsByUser возвращает все passkey пользователя.
func (s *Storage) ListCredentialsByUser(ctx context.Context, userUID string) ([]*models.Credential, error) {
	const op = "repository.ListCredentialsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT credential_id, user_uid, public_key, sign_count, transports, created_at, last_used_at
			  FROM passkey_credentials
			  WHERE user_uid = $1`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, cred)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateCredential сохраняет новый passkey. Повторный credential_id
// завершается storage.ErrConflict.
func (s *Storage) CreateCredential(ctx context.Context, cred models.Credential) error {
	const op = "repository.CreateCredential"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var transports sql.NullString
	if len(cred.Transports) > 0 {
		transports = sql.NullString{String: strings.Join(cred.Transports, ","), Valid: true}
	}
	query := `INSERT INTO passkey_credentials (credential_id, user_uid, public_key, sign_count, transports)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		cred.CredentialID, cred.UserUID, cred.PublicKey, cred.SignCount, transports); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// FindCredentialByID возвращает passkey по его credential_id.
func (s *Storage) FindCredentialByID(ctx context.Context, credentialID string) (*models.Credential, error) {
	const op = "repository.FindCredentialByID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT credential_id, user_uid, public_key, sign_count, transports, created_at, last_used_at
			  FROM passkey_credentials
			  WHERE credential_id = $1`
	row := s.DB.QueryRowContext(ctx, query, credentialID)
	cred, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return cred, nil
}

// UpdateCredentialAfterUse записывает новый счетчик подписей и время
// последнего использования. Условие sign_count < $1 — защита от клонирования:
// немонотонный счетчик не записывается, возвращается storage.ErrInvalidState.
func (s *Storage) UpdateCredentialAfterUse(ctx context.Context, credentialID string, newCount uint32, usedAt time.Time) error {
	const op = "repository.UpdateCredentialAfterUse"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE passkey_credentials
			  SET sign_count = $1, last_used_at = $2
			  WHERE credential_id = $3 AND sign_count < $1`
	res, err := s.DB.ExecContext(ctx, query, newCount, usedAt, credentialID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrInvalidState)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	cred := &models.Credential{}
	var transports sql.NullString
	var lastUsedAt sql.NullTime
	if err := row.Scan(&cred.CredentialID, &cred.UserUID, &cred.PublicKey,
		&cred.SignCount, &transports, &cred.CreatedAt, &lastUsedAt); err != nil {
		return nil, err
	}
	if transports.Valid && transports.String != "" {
		cred.Transports = strings.Split(transports.String, ",")
	}
	if lastUsedAt.Valid {
		cred.LastUsedAt = &lastUsedAt.Time
	}
	return cred, nil
}
