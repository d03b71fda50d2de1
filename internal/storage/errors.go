// Package storage определяет общую таксономию ошибок слоя хранения.
// Репозитории приводят ошибки драйвера к этим значениям, чтобы
// бизнес-логика и HTTP-слой различали виды сбоев без знания о PostgreSQL.
package storage

import "errors"

var (
	// ErrNotFound запись не найдена.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict нарушение уникального ограничения.
	ErrConflict = errors.New("storage: conflict")
	// ErrInvalidState операция над записью в недопустимом состоянии,
	// например повторная обработка платежа или откат счетчика подписей.
	ErrInvalidState = errors.New("storage: invalid state")
)
