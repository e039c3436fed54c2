/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ledger-service needs: account lookup by mobile or email, the
 * atomic balance adjustment primitive, and append/list operations on the
 * transfer ledger. Defining an interface decouples the transfer engine from
 * PostgreSQL and lets tests substitute in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/pocketbank/ledger-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account lookup. FindUserAccountByMobile applies the role='user' filter
	// used to resolve transfer receivers.
	FindAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error)
	FindUserAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// AdjustBalance applies a relative delta to one account's balance as a
	// single atomic statement. A negative delta that would push the balance
	// below zero fails with ErrInsufficientFunds and leaves the row untouched.
	AdjustBalance(ctx context.Context, mobile string, delta int64) error

	// Ledger operations. The transfers table is append-only.
	CreateTransferRecord(ctx context.Context, rec *domain.TransferRecord) error
	ListTransfersByEmail(ctx context.Context, email string, limit int) ([]domain.TransferRecord, error)
	ListAllTransfers(ctx context.Context) ([]domain.TransferRecord, error)
}
