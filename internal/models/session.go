package models

import "time"

// Session представляет сессию пользователя: непрозрачный случайный токен
// с ограниченным сроком действия. Истекшие сессии удаляются лениво при проверке.
type Session struct {
	Token     string    `json:"token"`
	UserUID   string    `json:"user_uid"`
	ExpiresAt time.Time `json:"expires_at"`
}
