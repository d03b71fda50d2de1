package models

import "time"

// Credential представляет зарегистрированный passkey пользователя.
// CredentialID хранится в base64url — так же, как его присылает клиент,
// и служит ключом поиска при аутентификации.
type Credential struct {
	CredentialID string     `json:"credential_id"`
	UserUID      string     `json:"user_uid"`
	PublicKey    []byte     `json:"-"`
	SignCount    uint32     `json:"sign_count"` // Монотонный счетчик подписей аутентификатора
	Transports   []string   `json:"transports,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
}
