/**
 * @description
 * This file defines the transfer domain models: the append-only ledger record,
 * the incoming request DTO, and the result returned by the transfer engine.
 *
 * @notes
 * - The ledger row always carries the *requested* amount. The fee-adjusted
 *   amount credited to the receiver is derivable from Amount and Fee.
 * - TransferRecord rows are immutable once created.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transfer outcome statuses as seen by callers. A transfer that moved funds
// but could not yet append its ledger row reports StatusRecordPending; a
// transfer whose outcome needs operator follow-up reports StatusPendingReview.
const (
	TransferCommitted     = "committed"
	TransferRecordPending = "record_pending"
	TransferPendingReview = "pending_review"
)

// TransferRecord is the append-only ledger entry created once per committed
// transfer. It maps directly to the `transfers` table.
type TransferRecord struct {
	ID             uuid.UUID      `json:"id"`
	SenderMobile   string         `json:"sender_mobile"`
	SenderEmail    string         `json:"sender_email"`
	ReceiverMobile string         `json:"receiver_mobile"`
	Amount         int64          `json:"amount"` // requested amount, minor units
	Fee            int64          `json:"fee"`    // flat fee withheld from the receiver credit
	Note           string         `json:"note,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TransferRequest is the DTO for incoming transfer API requests. CallerEmail
// is not client-supplied; it is injected from the verified token so the
// engine can reject spoofed-sender submissions.
type TransferRequest struct {
	SenderMobile   string         `json:"sender_mobile"`
	ReceiverMobile string         `json:"receiver_mobile"`
	Amount         int64          `json:"amount"` // in minor units
	Note           string         `json:"note"`
	Metadata       map[string]any `json:"metadata"`
	CallerEmail    string         `json:"-"`
}

// TransferResult is returned by the engine on any outcome that moved funds.
type TransferResult struct {
	RecordID       uuid.UUID `json:"record_id"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount"`
	ReceiverAmount int64     `json:"receiver_amount"`
	Fee            int64     `json:"fee"`
}
