package service

import (
	"context"

	"go.uber.org/mock/gomock"

	"payflow/internal/audit"
	"payflow/internal/banking"
	"payflow/internal/events"
	"payflow/internal/payment/models"
	dErrors "payflow/pkg/domain-errors"
	"payflow/pkg/requestcontext"
)

func (s *ServiceSuite) refund(transactionID string, amount *int64) (*models.Refund, error) {
	return s.service.Refund(s.ctx, transactionID, models.RefundRequest{Amount: amount, Reason: "customer request"})
}

func amountOf(v int64) *int64 { return &v }

func (s *ServiceSuite) TestRefundFullBalanceByDefault() {
	txn := s.processCaptured()
	s.bank.EXPECT().Refund(gomock.Any(), txn.ID, int64(25_00)).Return(&banking.RefundResult{RefundID: "bank_ref_1"}, nil)

	refund, err := s.refund(txn.ID, nil)
	s.Require().NoError(err)

	s.Equal(models.RefundCompleted, refund.Status)
	s.Equal(int64(25_00), refund.Amount)
	s.Equal("bank_ref_1", refund.ExternalRefundID)
	s.Require().NotNil(refund.ProcessedAt)
}

func (s *ServiceSuite) TestRefundPartial() {
	txn := s.processCaptured()
	s.bank.EXPECT().Refund(gomock.Any(), txn.ID, int64(10_00)).Return(&banking.RefundResult{RefundID: "bank_ref_1"}, nil)

	refund, err := s.refund(txn.ID, amountOf(10_00))
	s.Require().NoError(err)
	s.Equal(int64(10_00), refund.Amount)

	total, err := s.store.CompletedRefundTotal(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(int64(10_00), total)
}

// Completed refunds never exceed the captured amount, across any sequence of
// partial refunds.
func (s *ServiceSuite) TestRefundsNeverExceedCaptured() {
	txn := s.processCaptured() // 25.00 captured
	s.bank.EXPECT().Refund(gomock.Any(), txn.ID, gomock.Any()).Return(&banking.RefundResult{RefundID: "bank_ref"}, nil).Times(2)

	_, err := s.refund(txn.ID, amountOf(15_00))
	s.Require().NoError(err)

	_, err = s.refund(txn.ID, amountOf(15_00))
	s.Require().Error(err, "second 15.00 refund exceeds the 10.00 remaining")
	s.True(dErrors.Is(err, dErrors.CodeConflict))

	_, err = s.refund(txn.ID, amountOf(10_00))
	s.Require().NoError(err)

	_, err = s.refund(txn.ID, amountOf(1))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeConflict))

	total, err := s.store.CompletedRefundTotal(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.LessOrEqual(total, txn.Amount)
	s.Equal(int64(25_00), total)
}

// A refund still at the bank reserves its amount, so a second request that
// arrives mid-flight cannot claim the same balance and complete alongside it.
func (s *ServiceSuite) TestRefundInFlightReservesBalance() {
	txn := s.processCaptured() // 25.00 captured

	s.bank.EXPECT().Refund(gomock.Any(), txn.ID, int64(25_00)).DoAndReturn(
		func(ctx context.Context, transactionID string, amount int64) (*banking.RefundResult, error) {
			_, err := s.refund(txn.ID, nil)
			s.Require().Error(err)
			s.True(dErrors.Is(err, dErrors.CodeConflict))
			return &banking.RefundResult{RefundID: "bank_ref_1"}, nil
		})

	refund, err := s.refund(txn.ID, nil)
	s.Require().NoError(err)
	s.Equal(models.RefundCompleted, refund.Status)

	total, err := s.store.CompletedRefundTotal(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(int64(25_00), total)
	s.LessOrEqual(total, txn.Amount)
}

func (s *ServiceSuite) TestRefundUnknownTransaction() {
	_, err := s.refund("txn_missing", nil)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRefundNonCapturedTransaction() {
	s.bank.EXPECT().Authorize(gomock.Any(), gomock.Any()).Return(&banking.AuthorizationResult{
		Approved: false, DeclineCode: "do_not_honor",
	}, nil)
	txn, err := s.service.Process(s.ctx, validRequest())
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, txn.Status)

	_, err = s.refund(txn.ID, nil)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestRefundInvalidAmount() {
	txn := s.processCaptured()

	_, err := s.refund(txn.ID, amountOf(0))
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))

	_, err = s.refund(txn.ID, amountOf(30_00))
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRefundBankUnavailable() {
	txn := s.processCaptured()
	s.bank.EXPECT().Refund(gomock.Any(), txn.ID, int64(25_00)).Return(nil, errBankDown)

	_, err := s.refund(txn.ID, nil)
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeUnavailable))

	// The failed refund released the balance: nothing was completed.
	total, err := s.store.CompletedRefundTotal(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Zero(total)

	s.bank.EXPECT().Refund(gomock.Any(), txn.ID, int64(25_00)).Return(&banking.RefundResult{RefundID: "bank_ref_2"}, nil)
	refund, err := s.refund(txn.ID, nil)
	s.Require().NoError(err)
	s.Equal(models.RefundCompleted, refund.Status)
}

func (s *ServiceSuite) TestRefundEmitsOnePairPerTransition() {
	txn := s.processCaptured()
	s.bank.EXPECT().Refund(gomock.Any(), txn.ID, int64(25_00)).Return(&banking.RefundResult{RefundID: "bank_ref_1"}, nil)

	refund, err := s.refund(txn.ID, nil)
	s.Require().NoError(err)

	trail, err := s.auditStore.ListByEntity(s.ctx, audit.EntityRefund, refund.ID)
	s.Require().NoError(err)
	s.Require().Len(trail, 3)
	s.Equal(audit.EventRefundCreated, trail[0].EventType)
	s.Equal(audit.EventRefundProcessing, trail[1].EventType)
	s.Equal(audit.EventRefundCompleted, trail[2].EventType)
	for _, entry := range trail {
		s.Equal("corr-test", entry.CorrelationID)
	}

	var refundEvents []events.Event
	for _, event := range s.bus.History() {
		if event.RefundID != "" {
			refundEvents = append(refundEvents, event)
		}
	}
	s.Require().Len(refundEvents, 3)
	s.Equal(events.RefundCreated, refundEvents[0].Name)
	s.Equal(events.RefundProcessing, refundEvents[1].Name)
	s.Equal(events.RefundCompleted, refundEvents[2].Name)
	s.Equal("processing", refundEvents[2].OldStatus)
	s.Equal("completed", refundEvents[2].NewStatus)
}

func (s *ServiceSuite) TestRefundHiddenFromOtherMerchants() {
	txn := s.processCaptured()

	ctx := requestcontext.WithMerchantID(s.ctx, "merchant_999")
	_, err := s.service.Refund(ctx, txn.ID, models.RefundRequest{})
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeNotFound), "foreign transactions look like missing ones")
}
