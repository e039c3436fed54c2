/**
 * @description
 * Event payloads published to RabbitMQ by the transfer engine and the ledger
 * retry worker. Consumed by operational tooling; the reconciliation alert is
 * the path for funds that left one account without confirmed arrival.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferCompletedEvent is published after a transfer commits.
type TransferCompletedEvent struct {
	RecordID       uuid.UUID `json:"record_id"`
	SenderMobile   string    `json:"sender_mobile"`
	ReceiverMobile string    `json:"receiver_mobile"`
	Amount         int64     `json:"amount"`
	Fee            int64     `json:"fee"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReconciliationAlertEvent is published when a transfer reaches a state that
// requires operator follow-up: a debited sender whose credit failed and whose
// compensation also failed, or a ledger row that could not be appended after
// all retries.
type ReconciliationAlertEvent struct {
	RecordID       uuid.UUID `json:"record_id"`
	SenderMobile   string    `json:"sender_mobile"`
	ReceiverMobile string    `json:"receiver_mobile"`
	Amount         int64     `json:"amount"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

// LedgerRecoveredEvent is published when the retry worker lands a ledger row
// that failed its initial append.
type LedgerRecoveredEvent struct {
	RecordID  uuid.UUID `json:"record_id"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}
