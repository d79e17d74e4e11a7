package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"payflow/internal/audit"
	"payflow/internal/banking"
	"payflow/internal/events"
	"payflow/internal/payment/cache"
	"payflow/internal/payment/models"
	"payflow/internal/payment/ports/mocks"
	"payflow/internal/payment/secrets"
	"payflow/internal/payment/store"
	dErrors "payflow/pkg/domain-errors"
	"payflow/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	bank       *mocks.MockBank
	store      *store.MemoryStore
	cache      *cache.MemoryCache
	bus        *events.MemoryBus
	auditStore *audit.MemoryStore
	service    *Service
	ctx        context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.bank = mocks.NewMockBank(s.ctrl)
	s.store = store.NewMemory()
	s.cache = cache.NewMemory(time.Minute, 100)
	s.bus = events.NewMemoryBus(slog.New(slog.DiscardHandler))
	s.auditStore = audit.NewMemoryStore()

	vault, err := secrets.NewVault("test-encryption-key")
	s.Require().NoError(err)

	svc, err := New(s.store, s.cache, s.bank, vault,
		WithLogger(slog.New(slog.DiscardHandler)),
		WithEventPublisher(s.bus),
		WithAuditPublisher(audit.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)
	s.service = svc

	s.ctx = requestcontext.WithCorrelationID(context.Background(), "corr-test")
}

func (s *ServiceSuite) TearDownTest() {
	s.cache.Close()
}

var errBankDown = errors.New("connection refused")

func validRequest() models.PaymentRequest {
	return models.PaymentRequest{
		MerchantID:    "merchant_001",
		Amount:        25_00,
		Currency:      "usd",
		PaymentMethod: models.MethodCreditCard,
		CardData: &models.CardData{
			CardNumber:     "4111 1111 1111 1111",
			ExpiryMonth:    12,
			ExpiryYear:     2030,
			CVV:            "123",
			CardholderName: "Jo Smith",
		},
		Description: "order 42",
	}
}

func (s *ServiceSuite) TestProcessSuccess() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req banking.AuthorizationRequest) (*banking.AuthorizationResult, error) {
			s.Equal("4111111111111111", req.CardNumber, "card number is normalized before the bank sees it")
			s.Equal(int64(25_00), req.AmountCents)
			s.Equal("USD", req.Currency)
			return &banking.AuthorizationResult{Approved: true, AuthorizationID: "auth_1"}, nil
		})
	s.bank.EXPECT().Capture(gomock.Any(), "auth_1").Return(&banking.CaptureResult{CaptureID: "cap_1"}, nil)

	txn, err := s.service.Process(s.ctx, validRequest())
	s.Require().NoError(err)

	s.Equal(models.StatusCaptured, txn.Status)
	s.Equal("auth_1", txn.AuthorizationID)
	s.Equal("cap_1", txn.CaptureID)
	s.Equal("1111", txn.CardLastFour)
	s.NotEmpty(txn.EncryptedCardData)
	s.NotContains(txn.EncryptedCardData, "4111111111111111")
	s.WithinDuration(txn.CreatedAt.Add(24*time.Hour), txn.ExpiresAt, time.Second)

	stored, err := s.store.GetTransaction(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCaptured, stored.Status)

	cached, err := s.cache.Get(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Require().NotNil(cached)
	s.Equal(models.StatusCaptured, cached.Status)
}

// Each transition produces exactly one audit entry and one event, with the
// request's correlation id on both.
func (s *ServiceSuite) TestProcessEmitsOnePairPerTransition() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{Approved: true, AuthorizationID: "auth_1"}, nil)
	s.bank.EXPECT().Capture(gomock.Any(), "auth_1").Return(&banking.CaptureResult{CaptureID: "cap_1"}, nil)

	txn, err := s.service.Process(s.ctx, validRequest())
	s.Require().NoError(err)

	trail, err := s.auditStore.ListByEntity(s.ctx, audit.EntityTransaction, txn.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 3)
	s.Equal(audit.EventPaymentCreated, trail[0].EventType)
	s.Equal(audit.EventPaymentAuthorized, trail[1].EventType)
	s.Equal(audit.EventPaymentCaptured, trail[2].EventType)
	for _, entry := range trail {
		s.Equal("corr-test", entry.CorrelationID)
	}

	history := s.bus.History()
	s.Require().Len(history, 3)
	s.Equal(events.PaymentCreated, history[0].Name)
	s.Equal(events.PaymentAuthorized, history[1].Name)
	s.Equal(events.PaymentCaptured, history[2].Name)
	for _, event := range history {
		s.Equal(txn.ID, event.TransactionID)
		s.Equal("corr-test", event.CorrelationID)
	}
}

// Transitions walk the defined path with no skipped intermediate state.
func (s *ServiceSuite) TestProcessStatusMonotonicity() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{Approved: true, AuthorizationID: "auth_1"}, nil)
	s.bank.EXPECT().Capture(gomock.Any(), "auth_1").Return(&banking.CaptureResult{CaptureID: "cap_1"}, nil)

	_, err := s.service.Process(s.ctx, validRequest())
	s.Require().NoError(err)

	history := s.bus.History()
	s.Require().Len(history, 3)
	s.Equal("", history[0].OldStatus)
	s.Equal("pending", history[0].NewStatus)
	s.Equal("pending", history[1].OldStatus)
	s.Equal("authorized", history[1].NewStatus)
	s.Equal("authorized", history[2].OldStatus)
	s.Equal("captured", history[2].NewStatus)
}

func (s *ServiceSuite) TestProcessDeclined() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{
		Approved:    false,
		DeclineCode: "insufficient_funds",
		Message:     "Insufficient funds",
	}, nil)
	// No Capture expectation: a declined payment must not reach capture.

	txn, err := s.service.Process(s.ctx, validRequest())
	s.Require().NoError(err, "a decline is a completed workflow, not an error")

	s.Equal(models.StatusFailed, txn.Status)
	s.Empty(txn.AuthorizationID)

	history := s.bus.History()
	s.Require().Len(history, 2)
	s.Equal(events.PaymentFailed, history[1].Name)
	s.Equal("insufficient_funds", history[1].Payload["decline_code"])
}

func (s *ServiceSuite) TestProcessBankUnavailable() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(nil, errBankDown)

	txn, err := s.service.Process(s.ctx, validRequest())
	s.Require().Error(err)
	s.Nil(txn)
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))

	// The pending transaction was still moved to failed.
	history := s.bus.History()
	s.Require().Len(history, 2)
	s.Equal(events.PaymentFailed, history[1].Name)
	s.Equal("bank_unavailable", history[1].Payload["failure_reason"])
}

func (s *ServiceSuite) TestProcessCaptureFailure() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{Approved: true, AuthorizationID: "auth_1"}, nil)
	s.bank.EXPECT().Capture(gomock.Any(), "auth_1").Return(nil, errBankDown)

	_, err := s.service.Process(s.ctx, validRequest())
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))

	history := s.bus.History()
	s.Require().Len(history, 3)
	s.Equal(events.PaymentAuthorized, history[1].Name)
	s.Equal(events.PaymentFailed, history[2].Name)
	s.Equal("capture_failed", history[2].Payload["failure_reason"])
}

func (s *ServiceSuite) TestProcessValidation() {
	s.Run("zero amount rejected", func() {
		req := validRequest()
		req.Amount = 0
		_, err := s.service.Process(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("bad merchant rejected", func() {
		req := validRequest()
		req.MerchantID = "x"
		_, err := s.service.Process(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("card payment without card rejected", func() {
		req := validRequest()
		req.CardData = nil
		_, err := s.service.Process(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("bad card number rejected", func() {
		req := validRequest()
		req.CardData.CardNumber = "1234"
		_, err := s.service.Process(s.ctx, req)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	// Nothing reached the bank or the event bus.
	s.Empty(s.bus.History())
}

func (s *ServiceSuite) TestProcessMerchantMismatch() {
	ctx := requestcontext.WithMerchantID(s.ctx, "merchant_999")
	_, err := s.service.Process(ctx, validRequest())
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestProcessBankTransferWithoutCard() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{Approved: true, AuthorizationID: "auth_1"}, nil)
	s.bank.EXPECT().Capture(gomock.Any(), "auth_1").Return(&banking.CaptureResult{CaptureID: "cap_1"}, nil)

	req := validRequest()
	req.PaymentMethod = models.MethodBankTransfer
	req.CardData = nil

	txn, err := s.service.Process(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(models.StatusCaptured, txn.Status)
	s.Empty(txn.CardLastFour)
	s.Empty(txn.EncryptedCardData)
}
