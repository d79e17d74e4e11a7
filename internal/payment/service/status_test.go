package service

import (
	"time"

	"go.uber.org/mock/gomock"

	"payflow/internal/banking"
	"payflow/internal/payment/models"
	dErrors "payflow/pkg/domain-errors"
	"payflow/pkg/requestcontext"
)

func (s *ServiceSuite) processCaptured() *models.Transaction {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{Approved: true, AuthorizationID: "auth_1"}, nil)
	s.bank.EXPECT().Capture(gomock.Any(), "auth_1").Return(&banking.CaptureResult{CaptureID: "cap_1"}, nil)

	txn, err := s.service.Process(s.ctx, validRequest())
	s.Require().NoError(err)
	return txn
}

func (s *ServiceSuite) TestStatusUnknownTransaction() {
	_, err := s.service.Status(s.ctx, "txn_missing")
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestStatusServedFromCache() {
	txn := s.processCaptured()

	snapshot, err := s.service.Status(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCaptured, snapshot.Status)
	s.Equal("auth_1", snapshot.AuthorizationID)
	s.Equal("cap_1", snapshot.CaptureID)
	s.Equal(txn.ID, snapshot.TransactionID)
}

func (s *ServiceSuite) TestStatusHiddenFromOtherMerchants() {
	txn := s.processCaptured()
	foreign := requestcontext.WithMerchantID(s.ctx, "merchant_999")

	// Cache hit: processing already wrote the snapshot.
	_, err := s.service.Status(foreign, txn.ID)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	// Cache miss goes through the store and stays hidden too.
	s.Require().NoError(s.cache.Invalidate(s.ctx, txn.ID))
	_, err = s.service.Status(foreign, txn.ID)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	// The owning merchant still sees it.
	owner := requestcontext.WithMerchantID(s.ctx, txn.MerchantID)
	snapshot, err := s.service.Status(owner, txn.ID)
	s.Require().NoError(err)
	s.Equal(txn.MerchantID, snapshot.MerchantID)
}

func (s *ServiceSuite) TestStatusMissFallsThroughAndRefreshes() {
	txn := s.processCaptured()

	// Drop the entry written during processing.
	s.Require().NoError(s.cache.Invalidate(s.ctx, txn.ID))

	snapshot, err := s.service.Status(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCaptured, snapshot.Status)

	// The miss repopulated the cache.
	cached, err := s.cache.Get(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Require().NotNil(cached)
	s.Equal(models.StatusCaptured, cached.Status)
}

// A status write overwrites the cached entry immediately, so a read right
// after a transition never sees the prior status.
func (s *ServiceSuite) TestStatusNeverStaleAfterWrite() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{Approved: true, AuthorizationID: "auth_1"}, nil)
	s.bank.EXPECT().Capture(gomock.Any(), "auth_1").DoAndReturn(
		func(ctx any, authorizationID string) (*banking.CaptureResult, error) {
			// Mid-workflow, the cache already reflects the authorized write.
			cached, err := s.cache.Get(s.ctx, s.latestTransactionID())
			s.Require().NoError(err)
			s.Require().NotNil(cached)
			s.Equal(models.StatusAuthorized, cached.Status)
			return &banking.CaptureResult{CaptureID: "cap_1"}, nil
		})

	txn, err := s.service.Process(s.ctx, validRequest())
	s.Require().NoError(err)

	snapshot, err := s.service.Status(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCaptured, snapshot.Status)
	s.WithinDuration(txn.UpdatedAt, snapshot.UpdatedAt, time.Second)
}

func (s *ServiceSuite) latestTransactionID() string {
	history := s.bus.History()
	s.Require().NotEmpty(history)
	return history[len(history)-1].TransactionID
}
