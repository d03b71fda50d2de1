package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/passkey-paywall/internal/models"
)

// CreatePayment сохраняет новый платеж в состоянии pending.
func (s *Storage) CreatePayment(ctx context.Context, p models.Payment) error {
	const op = "repository.CreatePayment"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payments (payment_id, user_uid, product_uid, amount, currency, status)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.DB.ExecContext(ctx, query,
		p.PaymentID, p.UserUID, p.ProductUID, p.Amount, p.Currency, p.Status); err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	return nil
}

// GetPayment возвращает платеж по его публичному идентификатору.
func (s *Storage) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	const op = "repository.GetPayment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT payment_id, user_uid, product_uid, amount, currency, status,
			      payment_method, transaction_hash, chain_id, confirmed_at, created_at
			  FROM payments
			  WHERE payment_id = $1`
	row := s.DB.QueryRowContext(ctx, query, paymentID)
	p, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return p, nil
}

// ListPaymentsByUser возвращает историю платежей пользователя, новые первыми.
func (s *Storage) ListPaymentsByUser(ctx context.Context, userUID string) ([]*models.Payment, error) {
	const op = "repository.ListPaymentsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT payment_id, user_uid, product_uid, amount, currency, status,
			      payment_method, transaction_hash, chain_id, confirmed_at, created_at
			  FROM payments
			  WHERE user_uid = $1
			  ORDER BY created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
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

// MarkPaymentProcessing переводит платеж pending -> processing и записывает
// способ оплаты. Возвращает false, если платеж не в состоянии pending —
// условие в WHERE защищает от двойной обработки.
func (s *Storage) MarkPaymentProcessing(ctx context.Context, paymentID, method string) (bool, error) {
	const op = "repository.MarkPaymentProcessing"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments
			  SET status = $1, payment_method = $2
			  WHERE payment_id = $3 AND status = $4`
	res, err := s.DB.ExecContext(ctx, query,
		models.PaymentStatusProcessing, method, paymentID, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

// MarkPaymentCompleted переводит платеж processing -> completed и записывает
// реквизиты расчета. Возвращает false, если платеж уже покинул processing.
func (s *Storage) MarkPaymentCompleted(ctx context.Context, paymentID, txHash string, chainID int64, confirmedAt time.Time) (bool, error) {
	const op = "repository.MarkPaymentCompleted"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments
			  SET status = $1, transaction_hash = $2, chain_id = $3, confirmed_at = $4
			  WHERE payment_id = $5 AND status = $6`
	res, err := s.DB.ExecContext(ctx, query,
		models.PaymentStatusCompleted, txHash, chainID, confirmedAt,
		paymentID, models.PaymentStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

// MarkPaymentFailed переводит платеж из pending или processing в failed.
// Возвращает false, если платеж уже в конечном состоянии.
func (s *Storage) MarkPaymentFailed(ctx context.Context, paymentID string) (bool, error) {
	const op = "repository.MarkPaymentFailed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments
			  SET status = $1
			  WHERE payment_id = $2 AND status IN ($3, $4)`
	res, err := s.DB.ExecContext(ctx, query,
		models.PaymentStatusFailed, paymentID,
		models.PaymentStatusPending, models.PaymentStatusProcessing)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	var method, txHash sql.NullString
	var chainID sql.NullInt64
	var confirmedAt sql.NullTime
	if err := row.Scan(&p.PaymentID, &p.UserUID, &p.ProductUID, &p.Amount, &p.Currency,
		&p.Status, &method, &txHash, &chainID, &confirmedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	if method.Valid {
		p.Method = &method.String
	}
	if txHash.Valid {
		p.TxHash = &txHash.String
	}
	if chainID.Valid {
		p.ChainID = &chainID.Int64
	}
	if confirmedAt.Valid {
		p.ConfirmedAt = &confirmedAt.Time
	}
	return p, nil
}
