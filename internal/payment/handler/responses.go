package handler

import "payflow/internal/payment/models"

// FromTransaction converts a transaction to its HTTP response. Encrypted card
// data never leaves the service; only the last four digits are exposed.
func FromTransaction(t *models.Transaction) *models.PaymentResponse {
	meta := t.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &models.PaymentResponse{
		TransactionID:   t.ID,
		Status:          t.Status,
		Amount:          t.Amount,
		Currency:        t.Currency,
		PaymentMethod:   t.PaymentMethod,
		CardLastFour:    t.CardLastFour,
		AuthorizationID: t.AuthorizationID,
		CaptureID:       t.CaptureID,
		Description:     t.Description,
		Metadata:        meta,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		ExpiresAt:       t.ExpiresAt,
	}
}

// FromRefund converts a refund to its HTTP response.
func FromRefund(r *models.Refund) *models.RefundResponse {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &models.RefundResponse{
		RefundID:         r.ID,
		TransactionID:    r.TransactionID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Status:           r.Status,
		Reason:           r.Reason,
		ExternalRefundID: r.ExternalRefundID,
		Metadata:         meta,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		ProcessedAt:      r.ProcessedAt,
	}
}
