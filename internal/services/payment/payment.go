// Package payment реализует платежный движок: создание платежа с дескриптором
// оплаты, машину состояний pending -> processing -> completed/failed,
// расчет через блокчейн-сеть и выдачу прав доступа после подтверждения.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/magabrotheeeer/passkey-paywall/internal/ledger"
	"github.com/magabrotheeeer/passkey-paywall/internal/lib/sl"
	"github.com/magabrotheeeer/passkey-paywall/internal/models"
	"github.com/magabrotheeeer/passkey-paywall/internal/storage"
)

// ErrSettlementFailed расчет в сети не удался, платеж переведен в failed.
var ErrSettlementFailed = errors.New("settlement failed")

var paymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "paywall_payments_settled_total",
	Help: "Total number of settlement attempts by outcome.",
}, []string{"outcome"})

// PaymentRepository интерфейс репозитория платежей. Методы Mark* выполняют
// атомарный переход состояния и возвращают false, если платеж уже не в
// ожидаемом статусе.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p models.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	ListPaymentsByUser(ctx context.Context, userUID string) ([]*models.Payment, error)
	MarkPaymentProcessing(ctx context.Context, paymentID, method string) (bool, error)
	MarkPaymentCompleted(ctx context.Context, paymentID, txHash string, chainID int64, confirmedAt time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, paymentID string) (bool, error)
}

// ProductGetter интерфейс чтения продуктов.
type ProductGetter interface {
	GetProduct(ctx context.Context, uid string) (*models.Product, error)
}

// AccessGranter интерфейс выдачи прав доступа.
type AccessGranter interface {
	UpsertAccessGrant(ctx context.Context, userUID, productUID string, paymentID *string) error
}

// SettlementClient интерфейс клиента блокчейн-сети.
type SettlementClient interface {
	SendValue(ctx context.Context, amount float64) (*ledger.TxResult, error)
	GetStatus(ctx context.Context, txHash string) (*ledger.TxResult, error)
}

// EventPublisher интерфейс публикации платежных событий в брокер.
type EventPublisher interface {
	Publish(routingkey string, message any) error
}

// Event сообщение о смене состояния платежа для внешних потребителей.
type Event struct {
	PaymentID  string    `json:"payment_id"`
	UserUID    string    `json:"user_uid"`
	ProductUID string    `json:"product_uid"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	TxHash     string    `json:"transaction_hash,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Service реализует платежный движок.
type Service struct {
	repo          PaymentRepository
	products      ProductGetter
	access        AccessGranter
	settlement    SettlementClient
	events        EventPublisher // nil отключает публикацию событий
	descriptorTTL time.Duration
	log           *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(repo PaymentRepository, products ProductGetter, access AccessGranter,
	settlement SettlementClient, events EventPublisher,
	descriptorTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		products:      products,
		access:        access,
		settlement:    settlement,
		events:        events,
		descriptorTTL: descriptorTTL,
		log:           log,
		locks:         make(map[string]*sync.Mutex),
	}
}

// lockPayment возвращает мьютекс конкретного платежа, чтобы два запроса
// не могли рассчитать один платеж параллельно.
func (s *Service) lockPayment(paymentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[paymentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[paymentID] = l
	}
	return l
}

func newPaymentID() string {
	return models.PaymentIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Initiate создает платеж в статусе pending и возвращает дескриптор оплаты.
// Цена и валюта фиксируются снимком на момент создания.
func (s *Service) Initiate(ctx context.Context, userUID, productUID string) (*models.PaymentDescriptor, error) {
	const op = "payment.Service.Initiate"

	product, err := s.products.GetProduct(ctx, productUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p := models.Payment{
		PaymentID:  newPaymentID(),
		UserUID:    userUID,
		ProductUID: product.UID,
		Amount:     product.Price,
		Currency:   product.Currency,
		Status:     models.PaymentStatusPending,
	}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("payment initiated",
		slog.String("payment_id", p.PaymentID),
		slog.String("user_uid", userUID),
		slog.String("product_uid", product.UID))

	return &models.PaymentDescriptor{
		PaymentID:   p.PaymentID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		ProductUID:  product.UID,
		ProductName: product.Name,
		ExpiresAt:   time.Now().Add(s.descriptorTTL),
	}, nil
}

// BeginProcessing переводит платеж из pending в processing. Платеж в любом
// другом статусе дает storage.ErrInvalidState: повторная оплата невозможна.
func (s *Service) BeginProcessing(ctx context.Context, paymentID, method string) error {
	const op = "payment.Service.BeginProcessing"

	if _, err := s.repo.GetPayment(ctx, paymentID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.repo.MarkPaymentProcessing(ctx, paymentID, method)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return storage.ErrInvalidState
	}
	return nil
}

// Settle выполняет расчет платежа в сети: отправляет сумму на адрес
// получателя, при подтверждении завершает платеж и выдает право доступа.
// Для одного платежа одновременно выполняется не более одного расчета.
func (s *Service) Settle(ctx context.Context, paymentID string) (*models.Payment, error) {
	const op = "payment.Service.Settle"

	l := s.lockPayment(paymentID)
	l.Lock()
	defer l.Unlock()

	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.Status != models.PaymentStatusProcessing {
		return nil, storage.ErrInvalidState
	}

	result, err := s.settlement.SendValue(ctx, p.Amount)
	if err != nil {
		s.log.Error("settlement transaction failed", slog.String("payment_id", paymentID), sl.Err(err))
		return nil, s.failPayment(ctx, p, err)
	}
	if result.Status != ledger.TxStatusConfirmed {
		s.log.Error("settlement transaction reverted",
			slog.String("payment_id", paymentID),
			slog.String("tx_hash", result.TxHash))
		return nil, s.failPayment(ctx, p, fmt.Errorf("transaction %s reverted", result.TxHash))
	}

	return s.completePayment(ctx, p, result)
}

// Reconcile сверяет платеж с состоянием сети: подвешенный в processing
// платеж с известной транзакцией доводится до конечного статуса.
// Терминальные платежи и платежи без транзакции возвращаются как есть.
func (s *Service) Reconcile(ctx context.Context, paymentID, txHash string) (*models.Payment, error) {
	const op = "payment.Service.Reconcile"

	l := s.lockPayment(paymentID)
	l.Lock()
	defer l.Unlock()

	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if models.IsTerminalPaymentStatus(p.Status) {
		return p, nil
	}
	if txHash == "" && p.TxHash != nil {
		txHash = *p.TxHash
	}
	if txHash == "" {
		return p, nil
	}

	result, err := s.settlement.GetStatus(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch result.Status {
	case ledger.TxStatusConfirmed:
		return s.completePayment(ctx, p, result)
	case ledger.TxStatusFailed:
		return nil, s.failPayment(ctx, p, fmt.Errorf("transaction %s reverted", txHash))
	default:
		// транзакция еще не в блоке, платеж остается в processing
		return p, nil
	}
}

func (s *Service) completePayment(ctx context.Context, p *models.Payment, result *ledger.TxResult) (*models.Payment, error) {
	const op = "payment.Service.completePayment"

	ok, err := s.repo.MarkPaymentCompleted(ctx, p.PaymentID, result.TxHash, result.ChainID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, storage.ErrInvalidState
	}

	if err := s.access.UpsertAccessGrant(ctx, p.UserUID, p.ProductUID, &p.PaymentID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	paymentsSettled.WithLabelValues("completed").Inc()
	s.publish("payment.completed", p, models.PaymentStatusCompleted, result.TxHash)
	s.log.Info("payment completed",
		slog.String("payment_id", p.PaymentID),
		slog.String("tx_hash", result.TxHash))

	return s.repo.GetPayment(ctx, p.PaymentID)
}

func (s *Service) failPayment(ctx context.Context, p *models.Payment, cause error) error {
	if _, err := s.repo.MarkPaymentFailed(ctx, p.PaymentID); err != nil {
		s.log.Error("failed to mark payment failed", slog.String("payment_id", p.PaymentID), sl.Err(err))
	}
	paymentsSettled.WithLabelValues("failed").Inc()
	s.publish("payment.failed", p, models.PaymentStatusFailed, "")
	return fmt.Errorf("%w: %w", ErrSettlementFailed, cause)
}

func (s *Service) publish(routingkey string, p *models.Payment, status, txHash string) {
	if s.events == nil {
		return
	}
	event := Event{
		PaymentID:  p.PaymentID,
		UserUID:    p.UserUID,
		ProductUID: p.ProductUID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     status,
		TxHash:     txHash,
		OccurredAt: time.Now(),
	}
	if err := s.events.Publish(routingkey, event); err != nil {
		s.log.Warn("failed to publish payment event", slog.String("routing_key", routingkey), sl.Err(err))
	}
}

// GetStatus возвращает статус платежа вместе с именем продукта.
func (s *Service) GetStatus(ctx context.Context, paymentID string) (*models.PaymentStatusInfo, error) {
	const op = "payment.Service.GetStatus"

	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	product, err := s.products.GetProduct(ctx, p.ProductUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.PaymentStatusInfo{
		PaymentID:   p.PaymentID,
		Status:      p.Status,
		Amount:      p.Amount,
		Currency:    p.Currency,
		ProductName: product.Name,
		TxHash:      p.TxHash,
		ChainID:     p.ChainID,
		ConfirmedAt: p.ConfirmedAt,
	}, nil
}

// GetPayment возвращает платеж по идентификатору.
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.repo.GetPayment(ctx, paymentID)
}

// ListByUser возвращает историю платежей пользователя, новые первыми.
func (s *Service) ListByUser(ctx context.Context, userUID string) ([]*models.Payment, error) {
	return s.repo.ListPaymentsByUser(ctx, userUID)
}
