package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payflow/internal/payment/models"
	dErrors "payflow/pkg/domain-errors"
	"payflow/pkg/platform/httputil"
	"payflow/pkg/requestcontext"
)

// Service defines the payment operations the transport layer depends on.
type Service interface {
	Process(ctx context.Context, req models.PaymentRequest) (*models.Transaction, error)
	Status(ctx context.Context, transactionID string) (*models.StatusSnapshot, error)
	Refund(ctx context.Context, transactionID string, req models.RefundRequest) (*models.Refund, error)
}

// Handler wires payment endpoints to the payment service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a payment handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts payment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/process", h.HandleProcess)
	r.Get("/{transactionID}", h.HandleStatus)
	r.Post("/{transactionID}/refund", h.HandleRefund)
}

// HandleProcess handles POST /payments/process requests. The full
// authorize-and-capture workflow runs before the response is written; a
// declined payment is a completed workflow and returns the failed
// transaction, not an error.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.CorrelationID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[models.PaymentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	txn, err := h.service.Process(ctx, *req)
	if err != nil {
		h.logger.ErrorContext(ctx, "payment processing failed",
			"request_id", requestID,
			"merchant_id", req.MerchantID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "payment processed",
		"request_id", requestID,
		"transaction_id", txn.ID,
		"merchant_id", txn.MerchantID,
		"status", txn.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromTransaction(txn))
}

// HandleStatus handles GET /payments/{transactionID} requests.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.CorrelationID(ctx)

	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "transaction id is required"))
		return
	}

	snapshot, err := h.service.Status(ctx, transactionID)
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "status lookup failed",
				"request_id", requestID,
				"transaction_id", transactionID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

// HandleRefund handles POST /payments/{transactionID}/refund requests. An
// absent body refunds the full remaining balance.
func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.CorrelationID(ctx)
	start := time.Now()

	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "transaction id is required"))
		return
	}

	var req models.RefundRequest
	if r.Body != nil && r.ContentLength != 0 {
		decoded, ok := httputil.DecodeAndPrepare[models.RefundRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		req = *decoded
	}

	refund, err := h.service.Refund(ctx, transactionID, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "refund failed",
			"request_id", requestID,
			"transaction_id", transactionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "refund processed",
		"request_id", requestID,
		"refund_id", refund.ID,
		"transaction_id", transactionID,
		"status", refund.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromRefund(refund))
}
