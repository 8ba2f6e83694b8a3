package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sxledger/internal/amqp"
	"sxledger/internal/core"
	"sxledger/internal/sheets"
	"sxledger/internal/storage"
)

// MirrorStore is the part of the repository the ledger mirror reads and
// flags.
type MirrorStore interface {
	GetPendingSyncTransactions(ctx context.Context, limit int) ([]storage.PendingSyncTransaction, error)
	Transaction(ctx context.Context, id string) (*core.Transaction, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// MirrorProcessorConfig holds configuration for the mirror processor
type MirrorProcessorConfig struct {
	// PollInterval is how often pending transactions are swept (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of transactions per sweep (default: 10)
	BatchSize int

	// MaxRetries is the number of failed appends before a transaction is
	// flagged as a sync error (default: 3)
	MaxRetries int
}

func DefaultMirrorProcessorConfig() MirrorProcessorConfig {
	return MirrorProcessorConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

// MirrorProcessor copies committed transactions to an external ledger.
// It reacts to transaction.created messages and also sweeps the pending
// ones, so a lost message only delays a row.
type MirrorProcessor struct {
	store  MirrorStore
	writer sheets.LedgerWriter
	config MirrorProcessorConfig

	attemptsMu sync.Mutex
	attempts   map[string]int

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewMirrorProcessor(store MirrorStore, writer sheets.LedgerWriter, config MirrorProcessorConfig) *MirrorProcessor {
	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &MirrorProcessor{
		store:    store,
		writer:   writer,
		config:   config,
		attempts: map[string]int{},
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *MirrorProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("mirror processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Mirror processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for the current sweep. A
// Stop that timed out may be retried; it waits for the same sweep again.
func (p *MirrorProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh = nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Mirror processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Mirror processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *MirrorProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *MirrorProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.ProcessPending(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
		}
	}
}

// ProcessPending mirrors one batch of pending transactions and returns how
// many were written.
func (p *MirrorProcessor) ProcessPending(ctx context.Context) int {
	pending, err := p.store.GetPendingSyncTransactions(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load pending transactions", "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}
	slog.DebugContext(ctx, "Mirroring pending transactions", "count", len(pending))

	written := 0
	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := p.mirror(ctx, item.ID); err == nil {
			written++
		}
	}
	return written
}

// HandleMessage mirrors the transaction named by a transaction.created
// message. Unknown transactions are acknowledged: they were rolled back or
// already swept.
func (p *MirrorProcessor) HandleMessage(ctx context.Context, msg *amqp.TransactionCreatedMessage) error {
	if msg == nil || msg.ID == "" {
		return errors.New("message has no transaction id")
	}
	err := p.mirror(ctx, msg.ID)
	if errors.Is(err, storage.ErrTransactionNotFound) {
		slog.WarnContext(ctx, "Ignoring message for unknown transaction", "transaction_id", msg.ID)
		return nil
	}
	return err
}

func (p *MirrorProcessor) mirror(ctx context.Context, id string) error {
	txn, err := p.store.Transaction(ctx, id)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", id, err)
	}

	ref, err := p.writer.AppendTransaction(ctx, *txn)
	if err != nil {
		p.handleFailure(ctx, id, err)
		return fmt.Errorf("append transaction %s: %w", id, err)
	}

	p.attemptsMu.Lock()
	delete(p.attempts, id)
	p.attemptsMu.Unlock()

	if err := p.store.MarkSynced(ctx, id); err != nil {
		// The row is written; the mirror writer skips it on the next sweep.
		slog.WarnContext(ctx, "Failed to mark transaction as synced",
			"transaction_id", id, "error", err)
	}
	slog.InfoContext(ctx, "Mirrored transaction",
		"transaction_id", id,
		"schedule_id", txn.ScheduleID,
		"ref", ref)
	return nil
}

func (p *MirrorProcessor) handleFailure(ctx context.Context, id string, cause error) {
	p.attemptsMu.Lock()
	p.attempts[id]++
	attempt := p.attempts[id]
	if attempt >= p.config.MaxRetries {
		delete(p.attempts, id)
	}
	p.attemptsMu.Unlock()

	slog.WarnContext(ctx, "Mirror append failed",
		"transaction_id", id,
		"attempt", attempt,
		"error", cause)

	if attempt < p.config.MaxRetries {
		return
	}
	if err := p.store.MarkSyncError(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark transaction sync error",
			"transaction_id", id, "error", err)
		return
	}
	slog.ErrorContext(ctx, "Transaction failed permanently after max retries",
		"transaction_id", id,
		"attempts", attempt)
}
