/**
 * @description
 * This file contains the core business logic for the ledger-service: the
 * transfer engine. The `Service` struct validates a transfer request,
 * resolves both accounts, computes the fee-adjusted receive amount, applies
 * the two balance mutations through the store's atomic adjustment primitive,
 * and appends the ledger record.
 *
 * Key features:
 * - Compensating-action protocol: debit, then credit; a failed credit
 *   reverses the debit, and a failed reversal escalates to the
 *   reconciliation alerting path instead of silently losing funds.
 * - A failed ledger append never fails the transfer (funds already moved);
 *   the row is handed to the retry worker and the caller sees a pending
 *   status.
 * - Store calls that time out after the debit committed are treated as
 *   unknown-outcome and routed to reconciliation, never assumed failed.
 *
 * @dependencies
 * - context, errors, fmt, log, strings, time: Standard Go libraries.
 * - github.com/google/uuid: For ledger record ids.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For the operational event stream.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbank/ledger-service/internal/domain"
	"github.com/pocketbank/ledger-service/internal/store"
	"github.com/pocketbank/ledger-service/pkg/rabbitmq"
)

const (
	// FeeThreshold is the largest transfer amount delivered in full. Above
	// it the flat TransferFee is withheld from the receiver's credit.
	FeeThreshold = 100
	TransferFee  = 5
)

var (
	ErrInvalidAmount          = errors.New("transfer amount must be a positive integer")
	ErrReceiverNotFound       = errors.New("no receiver found")
	ErrSenderNotFound         = errors.New("no sender found")
	ErrSenderMismatch         = errors.New("authenticated caller does not own the sender account")
	ErrDebitFailed            = errors.New("debit failed")
	ErrCreditFailed           = errors.New("credit failed; debit reversed")
	ErrReconciliationRequired = errors.New("transfer outcome uncertain; escalated for reconciliation")
)

// RateLimitedError is returned when a sender exceeds the per-minute
// submission cap. RetryAfter is in seconds.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("transfer rate limit exceeded; retry after %ds", e.RetryAfter)
}

// TransferRateLimiter is the sliding-window limiter contract. Implemented by
// RedisTransferRateLimiter; nil disables limiting.
type TransferRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// LedgerRetrier accepts ledger rows whose initial append failed. Enqueue
// reports false when the queue cannot take the record.
type LedgerRetrier interface {
	Enqueue(rec *domain.TransferRecord) bool
}

// Service provides the core business logic for transfers.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	ledgerRetrier LedgerRetrier

	rateLimiter     TransferRateLimiter
	rateLimitPerMin int
}

// NewService creates a new transfer service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, retrier LedgerRetrier) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		ledgerRetrier: retrier,
	}
}

// SetTransferRateLimiter enables per-sender submission limiting.
func (s *Service) SetTransferRateLimiter(limiter TransferRateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.rateLimitPerMin = perMinute
}

// feeAdjustedAmount returns the amount actually credited to the receiver.
func feeAdjustedAmount(amount int64) int64 {
	if amount > FeeThreshold {
		return amount - TransferFee
	}
	return amount
}

// unknownOutcome reports whether a store error means the mutation may or may
// not have been applied. Timed-out calls must not be assumed failed.
func unknownOutcome(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// ExecuteTransfer moves funds from the sender to the receiver and appends the
// ledger record. Validation and resolution failures reject the request before
// any mutation. The returned result carries the new record id and the
// observed outcome status.
func (s *Service) ExecuteTransfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	// Validating
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if err := s.consumeTransferRateLimit(ctx, req.SenderMobile); err != nil {
		return nil, err
	}

	// Resolving. The receiver must be a 'user'-role account; agents and
	// admins resolve as not found, exactly like a missing mobile.
	receiver, err := s.repo.FindUserAccountByMobile(ctx, req.ReceiverMobile)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, fmt.Errorf("resolve receiver: %w", err)
	}

	sender, err := s.repo.FindAccountByMobile(ctx, req.SenderMobile)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, fmt.Errorf("resolve sender: %w", err)
	}

	// Spoofed-sender check: the verified token identity must own the sender
	// account.
	if req.CallerEmail != "" && !strings.EqualFold(sender.Email, req.CallerEmail) {
		return nil, ErrSenderMismatch
	}

	receiverAmount := feeAdjustedAmount(req.Amount)
	fee := req.Amount - receiverAmount

	// Debiting
	if err := s.repo.AdjustBalance(ctx, sender.Mobile, -req.Amount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return nil, err
		}
		if unknownOutcome(err) {
			s.publishReconciliationAlert(uuid.Nil, req, "debit outcome unknown after timeout")
			return nil, fmt.Errorf("%w: %v", ErrReconciliationRequired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDebitFailed, err)
	}

	// Crediting
	if err := s.repo.AdjustBalance(ctx, receiver.Mobile, receiverAmount); err != nil {
		if unknownOutcome(err) {
			s.publishReconciliationAlert(uuid.Nil, req, "credit outcome unknown after timeout")
			return nil, fmt.Errorf("%w: %v", ErrReconciliationRequired, err)
		}

		// Compensating: reverse the committed debit.
		compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if compErr := s.repo.AdjustBalance(compCtx, sender.Mobile, req.Amount); compErr != nil {
			log.Printf("level=error component=engine msg=\"compensation failed; funds debited but not credited\" sender=%s receiver=%s amount=%d credit_err=%v comp_err=%v",
				sender.Mobile, receiver.Mobile, req.Amount, err, compErr)
			s.publishReconciliationAlert(uuid.Nil, req, "credit failed and debit reversal failed")
			return nil, fmt.Errorf("%w: %v", ErrReconciliationRequired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCreditFailed, err)
	}

	// Recording
	rec := &domain.TransferRecord{
		ID:             uuid.New(),
		SenderMobile:   sender.Mobile,
		SenderEmail:    sender.Email,
		ReceiverMobile: receiver.Mobile,
		Amount:         req.Amount,
		Fee:            fee,
		Note:           req.Note,
		Metadata:       req.Metadata,
		CreatedAt:      time.Now().UTC(),
	}

	result := &domain.TransferResult{
		RecordID:       rec.ID,
		Status:         domain.TransferCommitted,
		Amount:         req.Amount,
		ReceiverAmount: receiverAmount,
		Fee:            fee,
	}

	if err := s.repo.CreateTransferRecord(ctx, rec); err != nil {
		// Balances already moved; the append is retried asynchronously and
		// the caller still gets a success-shaped response.
		log.Printf("level=warn component=engine msg=\"ledger append failed; queued for retry\" record_id=%s err=%v", rec.ID, err)
		result.Status = domain.TransferRecordPending
		if s.ledgerRetrier == nil || !s.ledgerRetrier.Enqueue(rec) {
			s.publishReconciliationAlert(rec.ID, req, "ledger append failed and retry queue unavailable")
			result.Status = domain.TransferPendingReview
		}
		return result, nil
	}

	s.publishTransferCompleted(rec)
	return result, nil
}

func (s *Service) consumeTransferRateLimit(ctx context.Context, senderMobile string) error {
	if s.rateLimiter == nil || s.rateLimitPerMin <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "transfer_submit", senderMobile, s.rateLimitPerMin, time.Minute)
	if err != nil {
		// Fail open: a broken limiter must not block transfers.
		log.Printf("level=warn component=engine msg=\"rate limiter unavailable; allowing request\" sender=%s err=%v", senderMobile, err)
		return nil
	}
	if count > s.rateLimitPerMin {
		return &RateLimitedError{RetryAfter: retryAfter}
	}
	return nil
}

func (s *Service) publishTransferCompleted(rec *domain.TransferRecord) {
	if s.eventProducer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event := domain.TransferCompletedEvent{
		RecordID:       rec.ID,
		SenderMobile:   rec.SenderMobile,
		ReceiverMobile: rec.ReceiverMobile,
		Amount:         rec.Amount,
		Fee:            rec.Fee,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.LedgerExchange, "transfer.completed", event); err != nil {
		log.Printf("level=warn component=engine msg=\"transfer.completed publish failed\" record_id=%s err=%v", rec.ID, err)
	}
}

func (s *Service) publishReconciliationAlert(recordID uuid.UUID, req domain.TransferRequest, reason string) {
	if s.eventProducer == nil {
		log.Printf("level=error component=engine msg=\"reconciliation required but no event producer configured\" sender=%s receiver=%s amount=%d reason=%q",
			req.SenderMobile, req.ReceiverMobile, req.Amount, reason)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	alert := domain.ReconciliationAlertEvent{
		RecordID:       recordID,
		SenderMobile:   req.SenderMobile,
		ReceiverMobile: req.ReceiverMobile,
		Amount:         req.Amount,
		Reason:         reason,
		Timestamp:      time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.LedgerExchange, "transfer.reconciliation.required", alert); err != nil {
		log.Printf("level=error component=engine msg=\"reconciliation alert publish failed\" sender=%s reason=%q err=%v",
			req.SenderMobile, reason, err)
	}
}

// Authenticate verifies an email/PIN pair and returns the matching account.
// It is the synchronous capability check composed in front of the engine.
func (s *Service) Authenticate(ctx context.Context, email, pin string) (*domain.Account, error) {
	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := comparePin(account.PinHash, pin); err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccountByEmail returns one account record.
func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.repo.FindAccountByEmail(ctx, email)
}

// ListAccounts returns every account record. Admin-gated at the API layer.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.repo.ListAccounts(ctx)
}

// TransferHistory returns the caller's most recent ledger rows.
func (s *Service) TransferHistory(ctx context.Context, email string, limit int) ([]domain.TransferRecord, error) {
	return s.repo.ListTransfersByEmail(ctx, email, limit)
}

// ListAllTransfers returns the full ledger. Admin-gated at the API layer.
func (s *Service) ListAllTransfers(ctx context.Context) ([]domain.TransferRecord, error) {
	return s.repo.ListAllTransfers(ctx)
}
