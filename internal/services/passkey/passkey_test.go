package passkey

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/passkey-paywall/internal/challenge"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) ListCredentialsByUser(ctx context.Context, userUID string) ([]*models.Credential, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Credential), args.Error(1)
}

func (m *MockCredentialRepository) CreateCredential(ctx context.Context, cred models.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *MockCredentialRepository) FindCredentialByID(ctx context.Context, credentialID string) (*models.Credential, error) {
	args := m.Called(ctx, credentialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Credential), args.Error(1)
}

func (m *MockCredentialRepository) UpdateCredentialAfterUse(ctx context.Context, credentialID string, newCount uint32, usedAt time.Time) error {
	args := m.Called(ctx, credentialID, newCount, usedAt)
	return args.Error(0)
}

func newTestService(t *testing.T, users *MockUserRepository, creds *MockCredentialRepository, store challenge.Store) *Service {
	t.Helper()
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: "Passkey Paywall",
		RPID:          "localhost",
		RPOrigins:     []string{"http://localhost:3000"},
	})
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	return New(wa, users, creds, store, log)
}

func TestService_BeginRegistration(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	creds := new(MockCredentialRepository)
	store := challenge.NewMemoryStore()

	existingID := base64.RawURLEncoding.EncodeToString([]byte("cred-raw-id"))
	users.On("GetUser", mock.Anything, "user-1").Return(&models.User{
		UID:   "user-1",
		Email: "alice@example.com",
		Name:  "Alice",
	}, nil).Once()
	creds.On("ListCredentialsByUser", mock.Anything, "user-1").Return([]*models.Credential{
		{CredentialID: existingID, UserUID: "user-1", PublicKey: []byte{1, 2, 3}},
	}, nil).Once()

	svc := newTestService(t, users, creds, store)

	options, err := svc.BeginRegistration(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, options)

	assert.NotEmpty(t, options.Response.Challenge)
	// существующий passkey исключается из повторной регистрации
	require.Len(t, options.Response.CredentialExcludeList, 1)
	assert.Equal(t, []byte("cred-raw-id"), []byte(options.Response.CredentialExcludeList[0].CredentialID))

	// челлендж сохранен и готов к изъятию
	_, err = store.TakeOnce(ctx, "user-1")
	require.NoError(t, err)

	users.AssertExpectations(t)
	creds.AssertExpectations(t)
}

func TestService_FinishRegistration_NoChallenge(t *testing.T) {
	users := new(MockUserRepository)
	creds := new(MockCredentialRepository)
	svc := newTestService(t, users, creds, challenge.NewMemoryStore())

	_, err := svc.FinishRegistration(context.Background(), "user-1", strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestService_FinishRegistration_BadResponseConsumesChallenge(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	creds := new(MockCredentialRepository)
	store := challenge.NewMemoryStore()

	users.On("GetUser", mock.Anything, "user-1").Return(&models.User{
		UID:   "user-1",
		Email: "alice@example.com",
		Name:  "Alice",
	}, nil).Twice()
	creds.On("ListCredentialsByUser", mock.Anything, "user-1").
		Return([]*models.Credential{}, nil).Twice()

	svc := newTestService(t, users, creds, store)

	_, err := svc.BeginRegistration(ctx, "user-1")
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, "user-1", strings.NewReader("not a credential"))
	assert.ErrorIs(t, err, ErrVerificationFailed)

	// провальная попытка расходует челлендж
	_, err = svc.FinishRegistration(ctx, "user-1", strings.NewReader("not a credential"))
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestService_BeginAuthentication(t *testing.T) {
	ctx := context.Background()
	users := new(MockUserRepository)
	creds := new(MockCredentialRepository)
	store := challenge.NewMemoryStore()

	creds.On("ListCredentialsByUser", mock.Anything, "user-1").Return([]*models.Credential{
		{CredentialID: base64.RawURLEncoding.EncodeToString([]byte("id")), UserUID: "user-1"},
	}, nil).Once()

	svc := newTestService(t, users, creds, store)

	options, err := svc.BeginAuthentication(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, options)

	assert.NotEmpty(t, options.Response.Challenge)
	// discoverable credential: allowCredentials всегда пустой
	assert.Empty(t, options.Response.AllowedCredentials)

	_, err = store.TakeOnce(ctx, "user-1")
	require.NoError(t, err)
	creds.AssertExpectations(t)
}

func TestService_BeginAuthentication_NoCredentials(t *testing.T) {
	users := new(MockUserRepository)
	creds := new(MockCredentialRepository)
	creds.On("ListCredentialsByUser", mock.Anything, "user-2").
		Return([]*models.Credential{}, nil).Once()

	svc := newTestService(t, users, creds, challenge.NewMemoryStore())

	_, err := svc.BeginAuthentication(context.Background(), "user-2")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestService_FinishAuthentication_NoChallenge(t *testing.T) {
	users := new(MockUserRepository)
	creds := new(MockCredentialRepository)
	svc := newTestService(t, users, creds, challenge.NewMemoryStore())

	_, err := svc.FinishAuthentication(context.Background(), "user-1", strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
