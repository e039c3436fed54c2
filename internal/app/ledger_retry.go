/**
 * @description
 * Background worker that retries failed ledger appends. A transfer whose
 * balances moved but whose ledger row could not be written is handed here by
 * the engine; the worker re-attempts the insert with exponential backoff and
 * escalates to the reconciliation alerting path only after all attempts are
 * exhausted. The queue drains during graceful shutdown.
 *
 * @dependencies
 * - context, log, sync, time: Standard Go libraries.
 * - internal/domain, internal/store, pkg/rabbitmq.
 */

package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pocketbank/ledger-service/internal/domain"
	"github.com/pocketbank/ledger-service/internal/store"
	"github.com/pocketbank/ledger-service/pkg/rabbitmq"
)

// LedgerRetryConfig tunes the retry worker. Zero values fall back to the
// defaults below.
type LedgerRetryConfig struct {
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
}

const (
	defaultRetryQueueSize   = 256
	defaultRetryMaxAttempts = 5
	defaultRetryBaseDelay   = 500 * time.Millisecond
)

// LedgerRetryWorker owns the retry queue. It implements LedgerRetrier.
type LedgerRetryWorker struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	cfg           LedgerRetryConfig

	queue chan *domain.TransferRecord
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewLedgerRetryWorker creates a worker; call Start before enqueueing.
func NewLedgerRetryWorker(repo store.Repository, producer rabbitmq.Publisher, cfg LedgerRetryConfig) *LedgerRetryWorker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultRetryQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultRetryMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultRetryBaseDelay
	}
	return &LedgerRetryWorker{
		repo:          repo,
		eventProducer: producer,
		cfg:           cfg,
		queue:         make(chan *domain.TransferRecord, cfg.QueueSize),
	}
}

// Start launches the worker goroutine.
func (w *LedgerRetryWorker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Enqueue hands a ledger row to the worker. It never blocks; false means the
// queue is full or the worker is shutting down, and the caller must escalate.
func (w *LedgerRetryWorker) Enqueue(rec *domain.TransferRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- rec:
		return true
	default:
		return false
	}
}

// Stop closes the intake and waits for the queue to drain, bounded by ctx.
func (w *LedgerRetryWorker) Stop(ctx context.Context) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("level=warn component=ledger_retry msg=\"shutdown before queue drained\"")
	}
}

func (w *LedgerRetryWorker) run() {
	defer w.wg.Done()
	for rec := range w.queue {
		w.process(rec)
	}
}

func (w *LedgerRetryWorker) process(rec *domain.TransferRecord) {
	delay := w.cfg.BaseDelay
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.repo.CreateTransferRecord(ctx, rec)
		cancel()
		if err == nil {
			log.Printf("level=info component=ledger_retry msg=\"ledger row recovered\" record_id=%s attempts=%d", rec.ID, attempt)
			w.publishRecovered(rec, attempt)
			return
		}
		log.Printf("level=warn component=ledger_retry msg=\"ledger append retry failed\" record_id=%s attempt=%d err=%v", rec.ID, attempt, err)
		if attempt < w.cfg.MaxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}

	log.Printf("level=error component=ledger_retry msg=\"ledger append retries exhausted\" record_id=%s", rec.ID)
	w.publishExhausted(rec)
}

func (w *LedgerRetryWorker) publishRecovered(rec *domain.TransferRecord, attempts int) {
	if w.eventProducer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event := domain.LedgerRecoveredEvent{
		RecordID:  rec.ID,
		Attempts:  attempts,
		Timestamp: time.Now().UTC(),
	}
	if err := w.eventProducer.Publish(ctx, rabbitmq.LedgerExchange, "transfer.ledger.recovered", event); err != nil {
		log.Printf("level=warn component=ledger_retry msg=\"recovered event publish failed\" record_id=%s err=%v", rec.ID, err)
	}
}

func (w *LedgerRetryWorker) publishExhausted(rec *domain.TransferRecord) {
	if w.eventProducer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	alert := domain.ReconciliationAlertEvent{
		RecordID:       rec.ID,
		SenderMobile:   rec.SenderMobile,
		ReceiverMobile: rec.ReceiverMobile,
		Amount:         rec.Amount,
		Reason:         "ledger append retries exhausted; balances moved without a ledger row",
		Timestamp:      time.Now().UTC(),
	}
	if err := w.eventProducer.Publish(ctx, rabbitmq.LedgerExchange, "transfer.reconciliation.required", alert); err != nil {
		log.Printf("level=error component=ledger_retry msg=\"reconciliation alert publish failed\" record_id=%s err=%v", rec.ID, err)
	}
}
