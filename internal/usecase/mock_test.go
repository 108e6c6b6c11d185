//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-generation-billing/internal/domain/model"
	"telegram-generation-billing/internal/domain/ports/adapter"
	"telegram-generation-billing/internal/domain/ports/repository"
	"telegram-generation-billing/internal/infra/db/memory"
	"telegram-generation-billing/internal/usecase"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	CreatePaymentLinkFunc func(ctx context.Context, paymentID string, invoiceNo int64, amount int64, description string) (string, string, error)
	QueryStatusFunc       func(ctx context.Context, correlationID string) (model.PaymentStatus, error)
	VerifySignatureFunc   func(f adapter.WebhookFields) bool

	queries atomic.Int64
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) CreatePaymentLink(ctx context.Context, paymentID string, invoiceNo int64, amount int64, description string) (string, string, error) {
	if m.CreatePaymentLinkFunc != nil {
		return m.CreatePaymentLinkFunc(ctx, paymentID, invoiceNo, amount, description)
	}
	return "https://pay.example/" + paymentID, strconv.FormatInt(invoiceNo, 10), nil
}

func (m *MockPaymentGateway) QueryStatus(ctx context.Context, correlationID string) (model.PaymentStatus, error) {
	m.queries.Add(1)
	if m.QueryStatusFunc != nil {
		return m.QueryStatusFunc(ctx, correlationID)
	}
	return model.PaymentStatusPending, nil
}

func (m *MockPaymentGateway) VerifySignature(f adapter.WebhookFields) bool {
	if m.VerifySignatureFunc != nil {
		return m.VerifySignatureFunc(f)
	}
	return f.Signature == "good"
}

func (m *MockPaymentGateway) Queries() int64 { return m.queries.Load() }

// ---- Mock TelegramBotAdapter ----

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []string

	SendMessageFunc func(ctx context.Context, tgID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, tgID int64, text string) error {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, tgID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, fmt.Sprintf("%d:%s", tgID, text))
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, tgID, text)
}

func (m *MockTelegramBot) NotifyPaymentCredited(ctx context.Context, tgID, generations, balance int64) error {
	return m.SendMessage(ctx, tgID, fmt.Sprintf("credited %d, balance %d", generations, balance))
}

func (m *MockTelegramBot) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// ---- Mock EventPublisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []adapter.Event
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, e adapter.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		out = append(out, e.Type)
	}
	return out
}

// ---- Mock RateLimiter ----

type MockLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.AllowFunc(ctx, key, limit, window)
}

// ---- Failing user repository ----

// flakyUserRepo wraps a real repository and lets a test break AddBalance.
type flakyUserRepo struct {
	repository.UserRepository
	AddBalanceFunc func(ctx context.Context, tx repository.Tx, id string, delta int64) (int64, error)
}

func (f *flakyUserRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta int64) (int64, error) {
	if f.AddBalanceFunc != nil {
		return f.AddBalanceFunc(ctx, tx, id, delta)
	}
	return f.UserRepository.AddBalance(ctx, tx, id, delta)
}

// ---- Mock TxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Fixture: engine over the in-memory ledger store
// =============================

type fixture struct {
	store    *memory.Store
	users    repository.UserRepository
	payments repository.PaymentRepository
	promos   repository.PromoCodeRepository
	gateway  *MockPaymentGateway
	bot      *MockTelegramBot
	events   *MockPublisher

	balance usecase.BalanceUseCase
	payment usecase.PaymentUseCase
	promo   usecase.PromoUseCase
	user    usecase.UserUseCase

	nextInvoice int64
}

var testPricing = []model.PricingTier{
	{Generations: 10, Price: 15000, Currency: "RUB"},
	{Generations: 50, Price: 59000, Currency: "RUB"},
}

func newFixture() *fixture {
	s := memory.NewStore()
	return newFixtureWithUsers(s, memory.NewUserRepo(s))
}

func newFixtureWithUsers(s *memory.Store, users repository.UserRepository) *fixture {
	f := &fixture{
		store:    s,
		users:    users,
		payments: memory.NewPaymentRepo(s),
		promos:   memory.NewPromoCodeRepo(s),
		gateway:  &MockPaymentGateway{},
		bot:      &MockTelegramBot{},
		events:   &MockPublisher{},
	}
	log := newTestLogger()
	f.balance = usecase.NewBalanceUseCase(f.users, s, log)
	f.payment = usecase.NewPaymentUseCase(f.payments, f.users, f.balance, s, f.gateway, f.bot, f.events, nil,
		usecase.PaymentSettings{PendingTTL: time.Hour, Pricing: testPricing}, log)
	f.promo = usecase.NewPromoUseCase(f.promos, f.balance, s, f.events, log)
	f.user = usecase.NewUserUseCase(f.users, f.balance, usecase.RegistrationPolicy{InitialBalance: 3, ReferralBonus: 5}, log)
	return f
}

func (f *fixture) addUser(tgID, balance int64) *model.User {
	u, err := model.NewUser(uuid.NewString(), tgID, "Test", "test", balance)
	if err != nil {
		panic(err)
	}
	if err := f.users.Save(context.Background(), nil, u); err != nil {
		panic(err)
	}
	return u
}

// addPayment stores a pending payment of the given age with a gateway
// correlation id. The first payment of a fixture gets "100500".
func (f *fixture) addPayment(userID string, generations int64, age time.Duration) *model.Payment {
	p, err := model.NewPayment(uuid.NewString(), userID, "mockpay",
		model.PricingTier{Generations: generations, Price: 15000, Currency: "RUB"})
	if err != nil {
		panic(err)
	}
	p.CreatedAt = time.Now().Add(-age)
	p.InvoiceID = strconv.FormatInt(100500+f.nextInvoice, 10)
	f.nextInvoice++
	if err := f.payments.Save(context.Background(), nil, p); err != nil {
		panic(err)
	}
	return p
}

func (f *fixture) balanceOf(userID string) int64 {
	u, err := f.users.FindByID(context.Background(), nil, userID)
	if err != nil {
		panic(err)
	}
	return u.Balance
}

func (f *fixture) paymentByID(id string) *model.Payment {
	p, err := f.payments.FindByID(context.Background(), nil, id)
	if err != nil {
		panic(err)
	}
	return p
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

func statusPtr(s model.PaymentStatus) *model.PaymentStatus { return &s }
