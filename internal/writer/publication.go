package writer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/wire/internal/model"
	"github.com/rickgao/wire/internal/router"
)

// PublicationWriter consumes publications from the router output and writes them to the
// publications table.
type PublicationWriter struct {
	cfg    WriterConfig
	logger *slog.Logger
	clock  clock.Clock

	input *router.GrowableBuffer[model.Publication]
	db    BatchSender

	batch   []model.Publication
	batchMu sync.Mutex

	ctx          context.Context
	cancel       context.CancelFunc
	consumerDone chan struct{}
	wg           sync.WaitGroup

	metrics WriterMetrics
}

// NewPublicationWriter creates a writer draining input into db.
func NewPublicationWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[model.Publication],
	db BatchSender,
	logger *slog.Logger,
) *PublicationWriter {
	return newPublicationWriter(cfg, input, db, logger, clock.New())
}

func newPublicationWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[model.Publication],
	db BatchSender,
	logger *slog.Logger,
	clk clock.Clock,
) *PublicationWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &PublicationWriter{
		cfg:    cfg,
		logger: logger.With("component", "publication_writer"),
		clock:  clk,
		input:  input,
		db:     db,
		batch:  make([]model.Publication, 0, cfg.BatchSize),
	}
}

// Start begins consuming publications and writing them to the database.
func (w *PublicationWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.consumerDone = make(chan struct{})

	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("publication writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, drains what is buffered and flushes the remainder using ctx.
func (w *PublicationWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping publication writer")

	w.input.Close()
	if w.consumerDone != nil {
		select {
		case <-w.consumerDone:
		case <-ctx.Done():
			w.logger.Warn("publication writer drain timed out", "pending", w.input.Len())
		}
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	// The run context is gone; the last batch rides on the caller's.
	w.flush(ctx)

	m := w.Stats()
	w.logger.Info("publication writer stopped",
		"inserts", m.Inserts,
		"conflicts", m.Conflicts,
		"errors", m.Errors,
	)
	return nil
}

// Stats returns current metrics.
func (w *PublicationWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *PublicationWriter) consumeLoop() {
	defer close(w.consumerDone)

	for {
		pubs, ok := w.input.ReceiveBatch(w.cfg.BatchSize)
		if !ok {
			return
		}

		w.batchMu.Lock()
		w.batch = append(w.batch, pubs...)
		shouldFlush := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

func (w *PublicationWriter) flushLoop() {
	defer w.wg.Done()

	ticker := w.clock.Ticker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database. A failed batch is dropped and counted.
func (w *PublicationWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]model.Publication, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := w.clock.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed publications",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", w.clock.Since(start),
	)
}

func (w *PublicationWriter) batchInsert(ctx context.Context, pubs []model.Publication) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, p := range pubs {
		batch.Queue(insertPublication, p.ID, p.SessionID, p.Channel, p.Kind, p.Payload, p.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range pubs {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
