package models

import "time"

// Статусы платежа. Переходы строго односторонние:
// pending -> processing -> completed, pending/processing -> failed.
// Из completed и failed переходов нет.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
)

// PaymentIDPrefix префикс публичных идентификаторов платежа.
const PaymentIDPrefix = "pay_"

// Payment представляет одну попытку покупки. Записи не удаляются —
// таблица платежей служит журналом аудита.
type Payment struct {
	PaymentID   string     `json:"payment_id"`
	UserUID     string     `json:"user_uid"`
	ProductUID  string     `json:"product_uid"`
	Amount      float64    `json:"amount"` // Снимок цены товара на момент создания
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	Method      *string    `json:"payment_method,omitempty"`
	TxHash      *string    `json:"transaction_hash,omitempty"`
	ChainID     *int64     `json:"chain_id,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PaymentDescriptor возвращается при инициации платежа вместе со статусом
// 402 Payment Required и описывает, что и до какого момента нужно оплатить.
type PaymentDescriptor struct {
	PaymentID   string    `json:"payment_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	ProductUID  string    `json:"product_uid"`
	ProductName string    `json:"product_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PaymentStatusInfo проекция платежа для чтения статуса.
type PaymentStatusInfo struct {
	PaymentID   string     `json:"payment_id"`
	Status      string     `json:"status"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	ProductName string     `json:"product_name"`
	TxHash      *string    `json:"transaction_hash,omitempty"`
	ChainID     *int64     `json:"chain_id,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// IsTerminalPaymentStatus сообщает, достиг ли платеж конечного состояния.
func IsTerminalPaymentStatus(status string) bool {
	return status == PaymentStatusCompleted || status == PaymentStatusFailed
}
