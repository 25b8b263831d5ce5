package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/medatlas/harvester/internal/harvest"
)

type stagedRecord struct {
	kind   harvest.Kind
	key    string
	record any
}

// Batcher buffers staged records and writes them through to the store every
// flushEvery completed pages, trading write amplification for crash loss of
// at most one batch.
type Batcher struct {
	mu         sync.Mutex
	store      harvest.Store
	flushEvery int
	pages      int
	staged     []stagedRecord
	logger     *zap.Logger
}

// NewBatcher wraps store with page-count based flushing.
func NewBatcher(store harvest.Store, flushEvery int, logger *zap.Logger) *Batcher {
	if flushEvery <= 0 {
		flushEvery = 25
	}
	return &Batcher{store: store, flushEvery: flushEvery, logger: logger}
}

// Store exposes the wrapped store for read-side queries.
func (b *Batcher) Store() harvest.Store { return b.store }

// Stage buffers one record for the next flush.
func (b *Batcher) Stage(kind harvest.Kind, key string, record any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.staged = append(b.staged, stagedRecord{kind: kind, key: key, record: record})
}

// PageDone marks one page as fully processed and flushes when the page
// budget is reached.
func (b *Batcher) PageDone(ctx context.Context) error {
	b.mu.Lock()
	b.pages++
	due := b.pages%b.flushEvery == 0
	b.mu.Unlock()
	if !due {
		return nil
	}
	return b.Flush(ctx)
}

// Flush writes every staged record through to the store. Records that fail
// to write are kept staged for the next attempt, and the first write error
// is returned so the caller can treat an unreachable store as fatal.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	staged := b.staged
	b.staged = nil
	b.mu.Unlock()

	if len(staged) == 0 {
		return nil
	}

	var retained []stagedRecord
	var firstErr error
	for _, rec := range staged {
		if err := b.store.Upsert(ctx, rec.kind, rec.key, rec.record); err != nil {
			retained = append(retained, rec)
			if firstErr == nil {
				firstErr = err
			}
			b.logger.Warn("record retained after failed write",
				zap.String("kind", string(rec.kind)),
				zap.String("key", rec.key),
				zap.Error(err),
			)
		}
	}
	if len(retained) > 0 {
		b.mu.Lock()
		b.staged = append(retained, b.staged...)
		b.mu.Unlock()
	}
	b.logger.Info("batch flushed",
		zap.Int("written", len(staged)-len(retained)),
		zap.Int("failed", len(retained)),
	)
	if firstErr != nil {
		return fmt.Errorf("flush: %d of %d records failed: %w", len(retained), len(staged), firstErr)
	}
	return nil
}

// Pending returns the number of records awaiting a flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.staged)
}
