package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamtam29/flashsale-app/internal/clock"
	"github.com/tamtam29/flashsale-app/internal/domain"
)

// AuditWriter persists a batch of audit events in one durable write.
type AuditWriter interface {
	InsertBatch(ctx context.Context, events []domain.AuditEvent) error
}

const (
	defaultAuditBatchSize  = 100
	defaultAuditInterval   = time.Second
	auditFlushWriteTimeout = 5 * time.Second
)

// AuditBatcher buffers admission-trail events and flushes them in bounded
// batches, on a size threshold or a timer, whichever fires first. LogEvent
// never blocks and never reports failure to the caller: audit is a
// best-effort side channel of the purchase path, not part of it.
type AuditBatcher struct {
	writer    AuditWriter
	clock     clock.Clock
	logger    zerolog.Logger
	batchSize int
	interval  time.Duration

	mu    sync.Mutex
	queue []domain.AuditEvent

	flushCh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

type AuditBatcherOption func(*AuditBatcher)

// WithAuditBatchSize overrides the default flush threshold.
func WithAuditBatchSize(n int) AuditBatcherOption {
	return func(b *AuditBatcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithAuditFlushInterval overrides the default timer interval.
func WithAuditFlushInterval(d time.Duration) AuditBatcherOption {
	return func(b *AuditBatcher) {
		if d > 0 {
			b.interval = d
		}
	}
}

func NewAuditBatcher(writer AuditWriter, clk clock.Clock, logger zerolog.Logger, opts ...AuditBatcherOption) *AuditBatcher {
	b := &AuditBatcher{
		writer:    writer,
		clock:     clk,
		logger:    logger.With().Str("component", "audit_batcher").Logger(),
		batchSize: defaultAuditBatchSize,
		interval:  defaultAuditInterval,
		flushCh:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the background flush loop.
func (b *AuditBatcher) Start() {
	b.wg.Add(1)
	go b.run()
}

// LogEvent appends one event to the in-process queue and returns immediately.
func (b *AuditBatcher) LogEvent(saleID, userID string, eventType domain.AuditEventType, metadata map[string]any) {
	ev := domain.AuditEvent{
		SaleID:    saleID,
		UserID:    userID,
		Type:      eventType,
		Metadata:  metadata,
		CreatedAt: b.clock.Now(),
	}

	b.mu.Lock()
	b.queue = append(b.queue, ev)
	full := len(b.queue) >= b.batchSize
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

// Close stops the timer and drains whatever is still queued.
func (b *AuditBatcher) Close() {
	close(b.done)
	b.wg.Wait()
	for b.flushOnce() {
	}
}

func (b *AuditBatcher) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushOnce()
		case <-b.flushCh:
			b.flushOnce()
		case <-b.done:
			return
		}
	}
}

// flushOnce takes up to one batch of the oldest queued events and writes them.
// A failed write is logged and the batch dropped; losing audit rows under an
// outage beats blocking the purchase path. Reports whether anything was taken.
func (b *AuditBatcher) flushOnce() bool {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return false
	}
	n := len(b.queue)
	if n > b.batchSize {
		n = b.batchSize
	}
	batch := make([]domain.AuditEvent, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), auditFlushWriteTimeout)
	defer cancel()

	if err := b.writer.InsertBatch(ctx, batch); err != nil {
		b.logger.Error().Err(err).Int("count", len(batch)).Msg("failed to flush audit events")
		return true
	}
	b.logger.Debug().Int("count", len(batch)).Msg("flushed audit events")
	return true
}
