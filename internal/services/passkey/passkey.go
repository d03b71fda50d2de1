// Package passkey реализует церемонии WebAuthn: регистрацию учетных данных
// и аутентификацию по discoverable credential. Все ключи создаются как
// resident keys, поэтому список allowCredentials при входе пустой.
package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/magabrotheeeer/passkey-paywall/internal/challenge"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

var (
	// ErrNoCredentials у пользователя нет зарегистрированных passkey.
	ErrNoCredentials = errors.New("user has no registered credentials")
	// ErrChallengeNotFound челлендж отсутствует, истек или уже использован.
	ErrChallengeNotFound = errors.New("challenge not found or already used")
	// ErrVerificationFailed криптографическая проверка ответа аутентификатора не прошла.
	ErrVerificationFailed = errors.New("credential verification failed")
	// ErrCounterRegression счетчик подписей не вырос: возможно клонирование аутентификатора.
	ErrCounterRegression = errors.New("sign counter did not increase")
)

// UserRepository интерфейс репозитория пользователей.
type UserRepository interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

// CredentialRepository интерфейс репозитория passkey-учетных данных.
type CredentialRepository interface {
	ListCredentialsByUser(ctx context.Context, userUID string) ([]*models.Credential, error)
	CreateCredential(ctx context.Context, cred models.Credential) error
	FindCredentialByID(ctx context.Context, credentialID string) (*models.Credential, error)
	UpdateCredentialAfterUse(ctx context.Context, credentialID string, newCount uint32, usedAt time.Time) error
}

// Service реализует бизнес-логику церемоний WebAuthn.
type Service struct {
	wa         *webauthn.WebAuthn
	users      UserRepository
	creds      CredentialRepository
	challenges challenge.Store
	log        *slog.Logger
}

func New(wa *webauthn.WebAuthn, users UserRepository, creds CredentialRepository,
	challenges challenge.Store, log *slog.Logger) *Service {
	return &Service{
		wa:         wa,
		users:      users,
		creds:      creds,
		challenges: challenges,
		log:        log,
	}
}

// ceremonyUser адаптирует модель пользователя к интерфейсу webauthn.User.
// Идентификатором в протоколе служит UID пользователя.
type ceremonyUser struct {
	user  *models.User
	creds []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte                         { return []byte(u.user.UID) }
func (u *ceremonyUser) WebAuthnName() string                       { return u.user.Email }
func (u *ceremonyUser) WebAuthnDisplayName() string                { return u.user.Name }
func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWebauthnCredential(cred *models.Credential) (webauthn.Credential, error) {
	id, err := base64.RawURLEncoding.DecodeString(cred.CredentialID)
	if err != nil {
		return webauthn.Credential{}, fmt.Errorf("decode credential id: %w", err)
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(cred.Transports))
	for _, t := range cred.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:        id,
		PublicKey: cred.PublicKey,
		Transport: transports,
		Authenticator: webauthn.Authenticator{
			SignCount: cred.SignCount,
		},
	}, nil
}

func (s *Service) loadCeremonyUser(ctx context.Context, userUID string) (*ceremonyUser, error) {
	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return nil, err
	}
	stored, err := s.creds.ListCredentialsByUser(ctx, userUID)
	if err != nil {
		return nil, err
	}
	creds := make([]webauthn.Credential, 0, len(stored))
	for _, c := range stored {
		wc, err := toWebauthnCredential(c)
		if err != nil {
			return nil, err
		}
		creds = append(creds, wc)
	}
	return &ceremonyUser{user: user, creds: creds}, nil
}

// BeginRegistration начинает церемонию регистрации passkey: генерирует
// челлендж и опции для navigator.credentials.create. Уже зарегистрированные
// учетные данные попадают в excludeCredentials.
func (s *Service) BeginRegistration(ctx context.Context, userUID string) (*protocol.CredentialCreation, error) {
	const op = "passkey.Service.BeginRegistration"

	cu, err := s.loadCeremonyUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(cu.creds))
	for _, c := range cu.creds {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.ID,
			Transport:    c.Transport,
		})
	}

	options, session, err := s.wa.BeginRegistration(cu,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementRequired,
			UserVerification: protocol.VerificationPreferred,
		}),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.challenges.Put(ctx, userUID, data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return options, nil
}

// FinishRegistration завершает церемонию регистрации: проверяет ответ
// аутентификатора и сохраняет новую учетную запись passkey. Челлендж
// изымается до проверки, так что провальная попытка тоже его расходует.
func (s *Service) FinishRegistration(ctx context.Context, userUID string, response io.Reader) (*models.Credential, error) {
	const op = "passkey.Service.FinishRegistration"

	data, err := s.challenges.TakeOnce(ctx, userUID)
	if errors.Is(err, challenge.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cu, err := s.loadCeremonyUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		s.log.Warn("failed to parse attestation response", sl.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	cred, err := s.wa.CreateCredential(cu, session, parsed)
	if err != nil {
		s.log.Warn("attestation verification failed", sl.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, t := range cred.Transport {
		transports = append(transports, string(t))
	}
	stored := models.Credential{
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
		UserUID:      userUID,
		PublicKey:    cred.PublicKey,
		SignCount:    cred.Authenticator.SignCount,
		Transports:   transports,
	}
	if err := s.creds.CreateCredential(ctx, stored); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("passkey registered",
		slog.String("user_uid", userUID),
		slog.String("credential_id", stored.CredentialID))
	return &stored, nil
}

// BeginAuthentication начинает церемонию входа. Список allowCredentials
// остается пустым: аутентификатор сам предъявляет discoverable credential.
func (s *Service) BeginAuthentication(ctx context.Context, userUID string) (*protocol.CredentialAssertion, error) {
	const op = "passkey.Service.BeginAuthentication"

	stored, err := s.creds.ListCredentialsByUser(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(stored) == 0 {
		return nil, ErrNoCredentials
	}

	options, session, err := s.wa.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.challenges.Put(ctx, userUID, data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return options, nil
}

// FinishAuthentication завершает церемонию входа: проверяет подпись,
// принадлежность учетных данных пользователю и рост счетчика подписей.
func (s *Service) FinishAuthentication(ctx context.Context, userUID string, response io.Reader) (*models.User, error) {
	const op = "passkey.Service.FinishAuthentication"

	data, err := s.challenges.TakeOnce(ctx, userUID)
	if errors.Is(err, challenge.ErrNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		s.log.Warn("failed to parse assertion response", sl.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	var owner *models.User
	var credentialID string

	cred, err := s.wa.ValidateDiscoverableLogin(
		func(rawID, userHandle []byte) (webauthn.User, error) {
			credentialID = base64.RawURLEncoding.EncodeToString(rawID)
			stored, err := s.creds.FindCredentialByID(ctx, credentialID)
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("unknown credential %s", credentialID)
			}
			if err != nil {
				return nil, err
			}
			if stored.UserUID != userUID {
				return nil, fmt.Errorf("credential %s belongs to another user", credentialID)
			}
			user, err := s.users.GetUser(ctx, stored.UserUID)
			if err != nil {
				return nil, err
			}
			wc, err := toWebauthnCredential(stored)
			if err != nil {
				return nil, err
			}
			owner = user
			return &ceremonyUser{user: user, creds: []webauthn.Credential{wc}}, nil
		},
		session, parsed,
	)
	if err != nil {
		s.log.Warn("assertion verification failed", sl.Err(err))
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	if cred.Authenticator.CloneWarning {
		return nil, ErrCounterRegression
	}

	err = s.creds.UpdateCredentialAfterUse(ctx, credentialID, cred.Authenticator.SignCount, time.Now())
	if errors.Is(err, storage.ErrInvalidState) {
		return nil, ErrCounterRegression
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("passkey authentication succeeded",
		slog.String("user_uid", owner.UID),
		slog.String("credential_id", credentialID))
	return owner, nil
}
