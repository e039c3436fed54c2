/**
 * @description
 * This file contains the HTTP handler for the transfer operation plus the
 * shared response helpers. Handlers parse incoming requests, call the
 * application service, and map engine outcomes onto HTTP statuses: clean
 * rejections are 4xx, a committed transfer is 201, and any outcome where
 * funds moved but follow-up is pending is a 202 rather than an error.
 *
 * @dependencies
 * - encoding/json, errors, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: Service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/pocketbank/ledger-service/internal/app"
	"github.com/pocketbank/ledger-service/internal/domain"
	"github.com/pocketbank/ledger-service/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service     *app.Service
	tokenSecret []byte
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, tokenSecret []byte) *Handlers {
	return &Handlers{service: service, tokenSecret: tokenSecret}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"message": message})
}

// transferResponse is sent back after a transfer request was accepted.
type transferResponse struct {
	RecordID       string `json:"record_id,omitempty"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	Amount         int64  `json:"amount,omitempty"`
	ReceiverAmount int64  `json:"receiver_amount,omitempty"`
	Fee            int64  `json:"fee,omitempty"`
}

// TransferHandler handles POST /transfers, the core money-movement operation.
// The sender identity comes from the request body but must belong to the
// authenticated caller; the engine enforces the match.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	callerEmail, ok := GetAuthenticatedEmail(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get caller identity from context")
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.CallerEmail = callerEmail
	if req.SenderMobile == "" {
		// Convenience: default the sender to the caller's own mobile claim.
		if mobile, ok := GetAuthenticatedMobile(r.Context()); ok {
			req.SenderMobile = mobile
		}
	}

	result, err := h.service.ExecuteTransfer(r.Context(), req)
	if err != nil {
		h.writeTransferError(w, req, err)
		return
	}

	switch result.Status {
	case domain.TransferCommitted:
		h.writeJSON(w, http.StatusCreated, transferResponse{
			RecordID:       result.RecordID.String(),
			Status:         result.Status,
			Message:        "Transfer completed",
			Amount:         result.Amount,
			ReceiverAmount: result.ReceiverAmount,
			Fee:            result.Fee,
		})
	default:
		// Funds moved; the ledger row or operator follow-up is pending.
		h.writeJSON(w, http.StatusAccepted, transferResponse{
			RecordID:       result.RecordID.String(),
			Status:         result.Status,
			Message:        "Transfer accepted; record pending",
			Amount:         result.Amount,
			ReceiverAmount: result.ReceiverAmount,
			Fee:            result.Fee,
		})
	}
}

func (h *Handlers) writeTransferError(w http.ResponseWriter, req domain.TransferRequest, err error) {
	var rateLimited *app.RateLimitedError
	switch {
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrReceiverNotFound):
		h.writeError(w, http.StatusNotFound, "No Receiver Found")
	case errors.Is(err, app.ErrSenderNotFound):
		h.writeError(w, http.StatusNotFound, "No Sender Found")
	case errors.Is(err, app.ErrSenderMismatch):
		h.writeError(w, http.StatusForbidden, "forbidden access")
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient balance")
	case errors.As(err, &rateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(rateLimited.RetryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many transfers; slow down")
	case errors.Is(err, app.ErrReconciliationRequired):
		// The outcome is uncertain, not failed. Distinct pending-review
		// status so the caller never retries blindly.
		log.Printf("level=error component=api endpoint=transfer outcome=reconciliation_required sender=%s err=%v", req.SenderMobile, err)
		h.writeJSON(w, http.StatusAccepted, transferResponse{
			Status:  domain.TransferPendingReview,
			Message: "Transfer pending review",
		})
	default:
		log.Printf("level=error component=api endpoint=transfer outcome=failed sender=%s err=%v", req.SenderMobile, err)
		h.writeError(w, http.StatusInternalServerError, "Something went wrong")
	}
}
