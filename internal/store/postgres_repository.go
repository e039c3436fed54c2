/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all SQL against the accounts and transfers tables.
 *
 * The balance adjustment deliberately uses a single relative UPDATE
 * (`balance = balance + $1`) instead of a read-then-write cycle, so that
 * concurrent transfers touching the same account serialize inside the
 * database and no update can be lost.
 *
 * @dependencies
 * - context, encoding/json, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pocketbank/ledger-service/internal/domain"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, name, email, mobile, pin_hash, role, status, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Mobile, &a.PinHash, &a.Role, &a.Status, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindAccountByMobile retrieves an account by its mobile number.
func (r *PostgresRepository) FindAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = $1`
	return scanAccount(r.db.QueryRow(ctx, query, mobile))
}

// FindUserAccountByMobile retrieves an account by mobile number, restricted to
// role 'user'. This is the receiver-resolution query: agent and admin accounts
// are not valid transfer receivers and resolve as not found.
func (r *PostgresRepository) FindUserAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = $1 AND role = 'user'`
	return scanAccount(r.db.QueryRow(ctx, query, mobile))
}

// FindAccountByEmail retrieves an account by its email address.
func (r *PostgresRepository) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(btrim(email)) = lower(btrim($1))`
	return scanAccount(r.db.QueryRow(ctx, query, email))
}

// ListAccounts returns all account records, newest first.
func (r *PostgresRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Mobile, &a.PinHash, &a.Role, &a.Status, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AdjustBalance applies a relative delta to one account's balance in a single
// atomic statement. The `balance + $1 >= 0` guard enforces the no-overdraft
// invariant for debits without a separate read.
func (r *PostgresRepository) AdjustBalance(ctx context.Context, mobile string, delta int64) error {
	query := `UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE mobile = $2 AND balance + $1 >= 0`
	tag, err := r.db.Exec(ctx, query, delta, mobile)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the account vanished or the guard rejected an overdraft.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE mobile = $1)`, mobile).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

// CreateTransferRecord appends one row to the transfers ledger.
func (r *PostgresRepository) CreateTransferRecord(ctx context.Context, rec *domain.TransferRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transfers (id, sender_mobile, sender_email, receiver_mobile, amount, fee, note, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.Exec(ctx, query,
		rec.ID, rec.SenderMobile, rec.SenderEmail, rec.ReceiverMobile,
		rec.Amount, rec.Fee, rec.Note, metadata, rec.CreatedAt)
	return err
}

const transferColumns = `id, sender_mobile, sender_email, receiver_mobile, amount, fee, note, metadata, created_at`

func collectTransfers(rows pgx.Rows) ([]domain.TransferRecord, error) {
	defer rows.Close()

	var records []domain.TransferRecord
	for rows.Next() {
		var rec domain.TransferRecord
		var metadata []byte
		if err := rows.Scan(&rec.ID, &rec.SenderMobile, &rec.SenderEmail, &rec.ReceiverMobile, &rec.Amount, &rec.Fee, &rec.Note, &metadata, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListTransfersByEmail returns the most recent ledger rows whose sender email
// matches, newest first.
func (r *PostgresRepository) ListTransfersByEmail(ctx context.Context, email string, limit int) ([]domain.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE lower(btrim(sender_email)) = lower(btrim($1)) ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, email, limit)
	if err != nil {
		return nil, err
	}
	return collectTransfers(rows)
}

// ListAllTransfers returns the full ledger, newest first.
func (r *PostgresRepository) ListAllTransfers(ctx context.Context) ([]domain.TransferRecord, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectTransfers(rows)
}
