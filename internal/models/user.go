// Package models содержит доменные структуры: пользователей, сессии,
// парольные ключи (passkey), товары, платежи и права доступа.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
// Пользователь не имеет пароля: единственный способ входа — passkey.
type User struct {
	UID       string    `json:"user_uid"` // Уникальный идентификатор пользователя
	Email     string    `json:"email"`    // Электронная почта (уникальная)
	Name      string    `json:"name"`     // Отображаемое имя
	CreatedAt time.Time `json:"created_at"`
}
