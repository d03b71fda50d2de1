package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/passkey-paywall/internal/ledger"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) CreatePayment(ctx context.Context, p models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) ListPaymentsByUser(ctx context.Context, userUID string) ([]*models.Payment, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Payment), args.Error(1)
}

func (m *MockPaymentRepository) MarkPaymentProcessing(ctx context.Context, paymentID, method string) (bool, error) {
	args := m.Called(ctx, paymentID, method)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) MarkPaymentCompleted(ctx context.Context, paymentID, txHash string, chainID int64, confirmedAt time.Time) (bool, error) {
	args := m.Called(ctx, paymentID, txHash, chainID, confirmedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) MarkPaymentFailed(ctx context.Context, paymentID string) (bool, error) {
	args := m.Called(ctx, paymentID)
	return args.Bool(0), args.Error(1)
}

type MockProductGetter struct {
	mock.Mock
}

func (m *MockProductGetter) GetProduct(ctx context.Context, uid string) (*models.Product, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

type MockAccessGranter struct {
	mock.Mock
}

func (m *MockAccessGranter) UpsertAccessGrant(ctx context.Context, userUID, productUID string, paymentID *string) error {
	args := m.Called(ctx, userUID, productUID, paymentID)
	return args.Error(0)
}

type MockSettlementClient struct {
	mock.Mock
}

func (m *MockSettlementClient) SendValue(ctx context.Context, amount float64) (*ledger.TxResult, error) {
	args := m.Called(ctx, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TxResult), args.Error(1)
}

func (m *MockSettlementClient) GetStatus(ctx context.Context, txHash string) (*ledger.TxResult, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.TxResult), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(routingkey string, message any) error {
	args := m.Called(routingkey, message)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestService(repo PaymentRepository, products ProductGetter, access AccessGranter,
	settlement SettlementClient, events EventPublisher) *Service {
	return New(repo, products, access, settlement, events, 30*time.Minute, newNoopLogger())
}

func TestService_Initiate(t *testing.T) {
	repo := new(MockPaymentRepository)
	products := new(MockProductGetter)

	products.On("GetProduct", mock.Anything, "prod-1").Return(&models.Product{
		UID:      "prod-1",
		Name:     "Premium Article",
		Price:    0.00001,
		Currency: "AVAX",
	}, nil).Once()
	repo.On("CreatePayment", mock.Anything, mock.MatchedBy(func(p models.Payment) bool {
		return strings.HasPrefix(p.PaymentID, "pay_") &&
			p.UserUID == "user-1" &&
			p.ProductUID == "prod-1" &&
			p.Amount == 0.00001 &&
			p.Currency == "AVAX" &&
			p.Status == models.PaymentStatusPending
	})).Return(nil).Once()

	svc := newTestService(repo, products, nil, nil, nil)

	descriptor, err := svc.Initiate(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(descriptor.PaymentID, "pay_"))
	assert.Equal(t, 0.00001, descriptor.Amount)
	assert.Equal(t, "AVAX", descriptor.Currency)
	assert.Equal(t, "Premium Article", descriptor.ProductName)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), descriptor.ExpiresAt, 5*time.Second)

	repo.AssertExpectations(t)
	products.AssertExpectations(t)
}

func TestService_Initiate_ProductNotFound(t *testing.T) {
	repo := new(MockPaymentRepository)
	products := new(MockProductGetter)
	products.On("GetProduct", mock.Anything, "missing").Return(nil, storage.ErrNotFound).Once()

	svc := newTestService(repo, products, nil, nil, nil)

	_, err := svc.Initiate(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_BeginProcessing(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(*MockPaymentRepository)
		expectedError error
	}{
		{
			name: "pending payment moves to processing",
			setupMocks: func(r *MockPaymentRepository) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID: "pay_abc",
					Status:    models.PaymentStatusPending,
				}, nil).Once()
				r.On("MarkPaymentProcessing", mock.Anything, "pay_abc", "wallet").Return(true, nil).Once()
			},
		},
		{
			name: "unknown payment",
			setupMocks: func(r *MockPaymentRepository) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(nil, storage.ErrNotFound).Once()
			},
			expectedError: storage.ErrNotFound,
		},
		{
			name: "payment already processing",
			setupMocks: func(r *MockPaymentRepository) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID: "pay_abc",
					Status:    models.PaymentStatusProcessing,
				}, nil).Once()
				r.On("MarkPaymentProcessing", mock.Anything, "pay_abc", "wallet").Return(false, nil).Once()
			},
			expectedError: storage.ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockPaymentRepository)
			tt.setupMocks(repo)

			svc := newTestService(repo, nil, nil, nil, nil)
			err := svc.BeginProcessing(context.Background(), "pay_abc", "wallet")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Settle_Confirmed(t *testing.T) {
	repo := new(MockPaymentRepository)
	access := new(MockAccessGranter)
	settlement := new(MockSettlementClient)
	events := new(MockEventPublisher)

	processing := &models.Payment{
		PaymentID:  "pay_abc",
		UserUID:    "user-1",
		ProductUID: "prod-1",
		Amount:     0.00001,
		Currency:   "AVAX",
		Status:     models.PaymentStatusProcessing,
	}
	txHash := "0xdeadbeef"
	completed := &models.Payment{
		PaymentID: "pay_abc",
		Status:    models.PaymentStatusCompleted,
		TxHash:    &txHash,
	}

	repo.On("GetPayment", mock.Anything, "pay_abc").Return(processing, nil).Once()
	settlement.On("SendValue", mock.Anything, 0.00001).Return(&ledger.TxResult{
		TxHash:  txHash,
		ChainID: 43113,
		Status:  ledger.TxStatusConfirmed,
	}, nil).Once()
	repo.On("MarkPaymentCompleted", mock.Anything, "pay_abc", txHash, int64(43113), mock.Anything).
		Return(true, nil).Once()
	access.On("UpsertAccessGrant", mock.Anything, "user-1", "prod-1", mock.Anything).Return(nil).Once()
	events.On("Publish", "payment.completed", mock.Anything).Return(nil).Once()
	repo.On("GetPayment", mock.Anything, "pay_abc").Return(completed, nil).Once()

	svc := newTestService(repo, nil, access, settlement, events)

	result, err := svc.Settle(context.Background(), "pay_abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, result.Status)

	repo.AssertExpectations(t)
	access.AssertExpectations(t)
	settlement.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestService_Settle_NetworkError(t *testing.T) {
	repo := new(MockPaymentRepository)
	settlement := new(MockSettlementClient)
	events := new(MockEventPublisher)

	repo.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
		PaymentID: "pay_abc",
		UserUID:   "user-1",
		Amount:    0.00001,
		Status:    models.PaymentStatusProcessing,
	}, nil).Once()
	settlement.On("SendValue", mock.Anything, 0.00001).
		Return(nil, errors.New("rpc unreachable")).Once()
	repo.On("MarkPaymentFailed", mock.Anything, "pay_abc").Return(true, nil).Once()
	events.On("Publish", "payment.failed", mock.Anything).Return(nil).Once()

	svc := newTestService(repo, nil, nil, settlement, events)

	_, err := svc.Settle(context.Background(), "pay_abc")
	assert.ErrorIs(t, err, ErrSettlementFailed)

	repo.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestService_Settle_WrongStatus(t *testing.T) {
	repo := new(MockPaymentRepository)
	repo.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
		PaymentID: "pay_abc",
		Status:    models.PaymentStatusPending,
	}, nil).Once()

	svc := newTestService(repo, nil, nil, nil, nil)

	_, err := svc.Settle(context.Background(), "pay_abc")
	assert.ErrorIs(t, err, storage.ErrInvalidState)
}

// fakePaymentRepo хранит один платеж с настоящими переходами состояний,
// чтобы проверять поведение при конкурентных запросах.
type fakePaymentRepo struct {
	mu      sync.Mutex
	payment models.Payment
}

func (f *fakePaymentRepo) CreatePayment(ctx context.Context, p models.Payment) error { return nil }

func (f *fakePaymentRepo) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payment
	return &p, nil
}

func (f *fakePaymentRepo) ListPaymentsByUser(ctx context.Context, userUID string) ([]*models.Payment, error) {
	return nil, nil
}

func (f *fakePaymentRepo) MarkPaymentProcessing(ctx context.Context, paymentID, method string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payment.Status != models.PaymentStatusPending {
		return false, nil
	}
	f.payment.Status = models.PaymentStatusProcessing
	return true, nil
}

func (f *fakePaymentRepo) MarkPaymentCompleted(ctx context.Context, paymentID, txHash string, chainID int64, confirmedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payment.Status != models.PaymentStatusProcessing {
		return false, nil
	}
	f.payment.Status = models.PaymentStatusCompleted
	f.payment.TxHash = &txHash
	return true, nil
}

func (f *fakePaymentRepo) MarkPaymentFailed(ctx context.Context, paymentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if models.IsTerminalPaymentStatus(f.payment.Status) {
		return false, nil
	}
	f.payment.Status = models.PaymentStatusFailed
	return true, nil
}

type countingSettlement struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSettlement) SendValue(ctx context.Context, amount float64) (*ledger.TxResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return &ledger.TxResult{TxHash: "0xabc", ChainID: 43113, Status: ledger.TxStatusConfirmed}, nil
}

func (c *countingSettlement) GetStatus(ctx context.Context, txHash string) (*ledger.TxResult, error) {
	return &ledger.TxResult{TxHash: txHash, Status: ledger.TxStatusConfirmed}, nil
}

func TestService_Settle_ConcurrentRequestsSendOnce(t *testing.T) {
	repo := &fakePaymentRepo{payment: models.Payment{
		PaymentID:  "pay_abc",
		UserUID:    "user-1",
		ProductUID: "prod-1",
		Amount:     0.00001,
		Status:     models.PaymentStatusProcessing,
	}}
	settlement := &countingSettlement{}
	access := new(MockAccessGranter)
	access.On("UpsertAccessGrant", mock.Anything, "user-1", "prod-1", mock.Anything).Return(nil)

	svc := newTestService(repo, nil, access, settlement, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Settle(context.Background(), "pay_abc")
		}(i)
	}
	wg.Wait()

	// ровно один запрос выполняет расчет, второй видит конечный статус
	assert.Equal(t, 1, settlement.calls)
	var okCount, conflictCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, storage.ErrInvalidState):
			conflictCount++
		}
	}
	assert.Equal(t, 1, okCount)
	assert.Equal(t, 1, conflictCount)
}

func TestService_Reconcile(t *testing.T) {
	txHash := "0xabc"
	tests := []struct {
		name           string
		txHash         string
		setupMocks     func(*MockPaymentRepository, *MockSettlementClient, *MockAccessGranter)
		expectedStatus string
		expectedError  error
	}{
		{
			name: "terminal payment untouched",
			setupMocks: func(r *MockPaymentRepository, s *MockSettlementClient, a *MockAccessGranter) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID: "pay_abc",
					Status:    models.PaymentStatusCompleted,
				}, nil).Once()
			},
			expectedStatus: models.PaymentStatusCompleted,
		},
		{
			name: "processing without transaction untouched",
			setupMocks: func(r *MockPaymentRepository, s *MockSettlementClient, a *MockAccessGranter) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID: "pay_abc",
					Status:    models.PaymentStatusProcessing,
				}, nil).Once()
			},
			expectedStatus: models.PaymentStatusProcessing,
		},
		{
			name:   "confirmed transaction completes payment",
			txHash: txHash,
			setupMocks: func(r *MockPaymentRepository, s *MockSettlementClient, a *MockAccessGranter) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID:  "pay_abc",
					UserUID:    "user-1",
					ProductUID: "prod-1",
					Status:     models.PaymentStatusProcessing,
				}, nil).Once()
				s.On("GetStatus", mock.Anything, txHash).Return(&ledger.TxResult{
					TxHash:  txHash,
					ChainID: 43113,
					Status:  ledger.TxStatusConfirmed,
				}, nil).Once()
				r.On("MarkPaymentCompleted", mock.Anything, "pay_abc", txHash, int64(43113), mock.Anything).
					Return(true, nil).Once()
				a.On("UpsertAccessGrant", mock.Anything, "user-1", "prod-1", mock.Anything).Return(nil).Once()
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID: "pay_abc",
					Status:    models.PaymentStatusCompleted,
					TxHash:    &txHash,
				}, nil).Once()
			},
			expectedStatus: models.PaymentStatusCompleted,
		},
		{
			name:   "pending transaction leaves payment processing",
			txHash: txHash,
			setupMocks: func(r *MockPaymentRepository, s *MockSettlementClient, a *MockAccessGranter) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID: "pay_abc",
					Status:    models.PaymentStatusProcessing,
				}, nil).Once()
				s.On("GetStatus", mock.Anything, txHash).Return(&ledger.TxResult{
					TxHash: txHash,
					Status: ledger.TxStatusPending,
				}, nil).Once()
			},
			expectedStatus: models.PaymentStatusProcessing,
		},
		{
			name:   "reverted transaction fails payment",
			txHash: txHash,
			setupMocks: func(r *MockPaymentRepository, s *MockSettlementClient, a *MockAccessGranter) {
				r.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
					PaymentID: "pay_abc",
					Status:    models.PaymentStatusProcessing,
				}, nil).Once()
				s.On("GetStatus", mock.Anything, txHash).Return(&ledger.TxResult{
					TxHash: txHash,
					Status: ledger.TxStatusFailed,
				}, nil).Once()
				r.On("MarkPaymentFailed", mock.Anything, "pay_abc").Return(true, nil).Once()
			},
			expectedError: ErrSettlementFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockPaymentRepository)
			settlement := new(MockSettlementClient)
			access := new(MockAccessGranter)
			tt.setupMocks(repo, settlement, access)

			svc := newTestService(repo, nil, access, settlement, nil)
			p, err := svc.Reconcile(context.Background(), "pay_abc", tt.txHash)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expectedStatus, p.Status)
			}
			repo.AssertExpectations(t)
			settlement.AssertExpectations(t)
			access.AssertExpectations(t)
		})
	}
}

func TestService_GetStatus(t *testing.T) {
	repo := new(MockPaymentRepository)
	products := new(MockProductGetter)

	txHash := "0xabc"
	repo.On("GetPayment", mock.Anything, "pay_abc").Return(&models.Payment{
		PaymentID:  "pay_abc",
		ProductUID: "prod-1",
		Amount:     0.00001,
		Currency:   "AVAX",
		Status:     models.PaymentStatusCompleted,
		TxHash:     &txHash,
	}, nil).Once()
	products.On("GetProduct", mock.Anything, "prod-1").Return(&models.Product{
		UID:  "prod-1",
		Name: "Premium Article",
	}, nil).Once()

	svc := newTestService(repo, products, nil, nil, nil)

	info, err := svc.GetStatus(context.Background(), "pay_abc")
	require.NoError(t, err)
	assert.Equal(t, "Premium Article", info.ProductName)
	assert.Equal(t, models.PaymentStatusCompleted, info.Status)
	assert.Equal(t, &txHash, info.TxHash)
}
