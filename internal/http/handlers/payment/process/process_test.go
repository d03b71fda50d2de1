package process

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/passkey-paywall/internal/http/middlewarectx"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/services/payment"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

// MockService реализует интерфейс process.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

func (m *MockService) BeginProcessing(ctx context.Context, paymentID, method string) error {
	args := m.Called(ctx, paymentID, method)
	return args.Error(0)
}

func (m *MockService) Settle(ctx context.Context, paymentID string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}

// MockExplorer реализует интерфейс process.ExplorerLinker
type MockExplorer struct{}

func (MockExplorer) ExplorerURL(txHash string) string {
	return "https://testnet.snowtrace.io/tx/" + txHash
}

func TestProcessHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	txHash := "0xdeadbeef"
	pendingPayment := &models.Payment{
		PaymentID: "pay_abc123",
		UserUID:   "user-1",
		Status:    models.PaymentStatusPending,
	}
	completedPayment := &models.Payment{
		PaymentID: "pay_abc123",
		UserUID:   "user-1",
		Status:    models.PaymentStatusCompleted,
		TxHash:    &txHash,
	}

	tests := []struct {
		name           string
		paymentID      string
		requestBody    interface{}
		userUID        string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "успешная оплата",
			paymentID:   "pay_abc123",
			requestBody: Request{PaymentMethod: "wallet"},
			userUID:     "user-1",
			setupMock: func(m *MockService) {
				m.On("GetPayment", mock.Anything, "pay_abc123").Return(pendingPayment, nil)
				m.On("BeginProcessing", mock.Anything, "pay_abc123", "wallet").Return(nil)
				m.On("Settle", mock.Anything, "pay_abc123").Return(completedPayment, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"explorer_url":"https://testnet.snowtrace.io/tx/0xdeadbeef"`,
		},
		{
			name:           "некорректный идентификатор платежа",
			paymentID:      "order-42",
			requestBody:    Request{PaymentMethod: "wallet"},
			userUID:        "user-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid payment id"}`,
		},
		{
			name:           "неподдерживаемый способ оплаты",
			paymentID:      "pay_abc123",
			requestBody:    Request{PaymentMethod: "card"},
			userUID:        "user-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field PaymentMethod has unsupported value`,
		},
		{
			name:           "отсутствует авторизация",
			paymentID:      "pay_abc123",
			requestBody:    Request{PaymentMethod: "wallet"},
			userUID:        "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"unauthorized"}`,
		},
		{
			name:        "платеж не найден",
			paymentID:   "pay_abc123",
			requestBody: Request{PaymentMethod: "wallet"},
			userUID:     "user-1",
			setupMock: func(m *MockService) {
				m.On("GetPayment", mock.Anything, "pay_abc123").Return(nil, storage.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"payment not found"}`,
		},
		{
			name:        "чужой платеж выглядит как несуществующий",
			paymentID:   "pay_abc123",
			requestBody: Request{PaymentMethod: "wallet"},
			userUID:     "user-2",
			setupMock: func(m *MockService) {
				m.On("GetPayment", mock.Anything, "pay_abc123").Return(pendingPayment, nil)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"payment not found"}`,
		},
		{
			name:        "платеж уже обрабатывается",
			paymentID:   "pay_abc123",
			requestBody: Request{PaymentMethod: "wallet"},
			userUID:     "user-1",
			setupMock: func(m *MockService) {
				m.On("GetPayment", mock.Anything, "pay_abc123").Return(pendingPayment, nil)
				m.On("BeginProcessing", mock.Anything, "pay_abc123", "wallet").
					Return(storage.ErrInvalidState)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"payment is not pending"}`,
		},
		{
			name:        "расчет в сети не удался",
			paymentID:   "pay_abc123",
			requestBody: Request{PaymentMethod: "wallet"},
			userUID:     "user-1",
			setupMock: func(m *MockService) {
				m.On("GetPayment", mock.Anything, "pay_abc123").Return(pendingPayment, nil)
				m.On("BeginProcessing", mock.Anything, "pay_abc123", "wallet").Return(nil)
				m.On("Settle", mock.Anything, "pay_abc123").
					Return(nil, payment.ErrSettlementFailed)
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `{"status":"Error","error":"settlement failed, payment marked as failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService, MockExplorer{})

			body, err := json.Marshal(tt.requestBody)
			assert.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/payments/"+tt.paymentID+"/process", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			ctx := req.Context()
			if tt.userUID != "" {
				ctx = context.WithValue(ctx, middlewarectx.UserUID, tt.userUID)
			}
			ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-id")
			req = req.WithContext(ctx)

			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.paymentID)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)

			mockService.AssertExpectations(t)
		})
	}
}
