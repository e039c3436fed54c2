/**
 * @description
 * This file defines the account domain model for the ledger-service. Accounts
 * are keyed by two unique identifiers: the mobile number (routing key for
 * transfers) and the email address (routing key for authentication).
 *
 * @notes
 * - Balances are stored as `int64` in the smallest currency unit, which
 *   avoids floating-point inaccuracies with financial data.
 * - The PIN hash is never serialized into API responses.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account roles. Only accounts with RoleUser may receive transfers.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Account statuses.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusBlocked = "blocked"
)

// Account represents a customer record in the accounts table. Mobile and
// email are unique across the account set.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile"`
	PinHash   string    `json:"-"`
	Role      string    `json:"role"`    // 'user', 'agent' or 'admin'
	Status    string    `json:"status"`  // 'pending', 'active' or 'blocked'
	Balance   int64     `json:"balance"` // in minor units
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
