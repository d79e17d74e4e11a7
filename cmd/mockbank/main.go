// mockbank is a deterministic stand-in for the external banking API. It
// approves everything except a small set of well-known test card numbers, so
// local runs and load tests get repeatable outcomes.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

var declinedCards = map[string]declineRule{
	"4000000000000002": {code: "05", message: "Do not honor"},
	"4000000000000127": {code: "82", message: "Incorrect CVC"},
	"4000000000000069": {code: "54", message: "Expired card"},
	"4000000000000051": {code: "51", message: "Insufficient funds"},
}

type declineRule struct {
	code    string
	message string
}

type bank struct {
	logger  *slog.Logger
	counter atomic.Uint64
}

type authorizeRequest struct {
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	CardNumber    string `json:"card_number"`
}

func (b *bank) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid JSON body"})
		return
	}

	if rule, declined := declinedCards[req.CardNumber]; declined {
		b.logger.Info("authorization declined",
			"transaction_id", req.TransactionID,
			"decline_code", rule.code,
		)
		writeJSON(w, http.StatusPaymentRequired, map[string]string{
			"status":       "declined",
			"decline_code": rule.code,
			"message":      rule.message,
		})
		return
	}

	authorizationID := fmt.Sprintf("auth_%010d", b.counter.Add(1))
	b.logger.Info("authorization approved",
		"transaction_id", req.TransactionID,
		"authorization_id", authorizationID,
		"amount_cents", req.AmountCents,
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "approved",
		"authorization_id": authorizationID,
		"message":          "Approved",
	})
}

type captureRequest struct {
	AuthorizationID string `json:"authorization_id"`
}

func (b *bank) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AuthorizationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "authorization_id is required"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "captured",
		"capture_id": fmt.Sprintf("cap_%010d", b.counter.Add(1)),
	})
}

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

func (b *bank) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "transaction_id is required"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "refunded",
		"refund_id": fmt.Sprintf("bankref_%010d", b.counter.Add(1)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	addr := os.Getenv("MOCKBANK_ADDR")
	if addr == "" {
		addr = ":1080"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	b := &bank{logger: logger}

	r := chi.NewRouter()
	r.Post("/api/v1/authorize", b.handleAuthorize)
	r.Post("/api/v1/capture", b.handleCapture)
	r.Post("/api/v1/refund", b.handleRefund)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting mockbank", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("mockbank exited", "error", err)
		os.Exit(1)
	}
}
