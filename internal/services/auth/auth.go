// Package auth реализует бизнес-логику учетных записей и сессий.
// Паролей в системе нет: единственный способ аутентификации — passkey,
// поэтому сессия выдается только после успешной церемонии WebAuthn.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

// ErrSessionInvalid сессия не существует или истекла.
var ErrSessionInvalid = errors.New("session invalid or expired")

// UserRepository интерфейс репозитория пользователей.
type UserRepository interface {
	RegisterUser(ctx context.Context, email, name string) (*models.User, error)
	GetUser(ctx context.Context, uid string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// SessionRepository интерфейс репозитория сессий.
type SessionRepository interface {
	CreateSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	DeleteSessions(ctx context.Context, token string) error
}

// AuthService реализует бизнес-логику регистрации и сессий.
type AuthService struct {
	users      UserRepository
	sessions   SessionRepository
	sessionTTL time.Duration
	log        *slog.Logger
}

func New(users UserRepository, sessions SessionRepository, sessionTTL time.Duration, log *slog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		log:        log,
	}
}

// Register создает нового пользователя. Повторная регистрация email
// возвращает storage.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, name string) (*models.User, error) {
	return s.users.RegisterUser(ctx, email, name)
}

// LookupUser ищет пользователя по email перед церемонией входа.
func (s *AuthService) LookupUser(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetUserByEmail(ctx, email)
}

// GetUser возвращает пользователя по идентификатору.
func (s *AuthService) GetUser(ctx context.Context, uid string) (*models.User, error) {
	return s.users.GetUser(ctx, uid)
}

// CreateSession выдает новую сессию с непрозрачным токеном.
func (s *AuthService) CreateSession(ctx context.Context, userUID string) (*models.Session, error) {
	const op = "auth.AuthService.CreateSession"

	session := models.Session{
		Token:     uuid.NewString(),
		UserUID:   userUID,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// ValidateSession проверяет токен и возвращает владельца сессии.
// Истекшая сессия удаляется лениво при первой проверке.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	const op = "auth.AuthService.ValidateSession"

	session, err := s.sessions.GetSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if time.Now().After(session.ExpiresAt) {
		if err := s.sessions.DeleteSessions(ctx, token); err != nil {
			s.log.Warn("failed to delete expired session", "error", err)
		}
		return nil, ErrSessionInvalid
	}

	user, err := s.users.GetUser(ctx, session.UserUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// Logout удаляет сессию. Неизвестный токен не считается ошибкой.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteSessions(ctx, token)
}
