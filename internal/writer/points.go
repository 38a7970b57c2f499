package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/motionfeed/internal/buffer"
	"github.com/rickgao/motionfeed/internal/poller"
)

// ErrClosed is returned by HandleMerge after Stop.
var ErrClosed = errors.New("writer closed")

// Schema creates the points table.
const Schema = `
CREATE TABLE IF NOT EXISTS points (
	run_id      UUID             NOT NULL,
	series      TEXT             NOT NULL,
	idx         INTEGER          NOT NULL,
	x           DOUBLE PRECISION NOT NULL,
	y           DOUBLE PRECISION NOT NULL,
	received_at BIGINT           NOT NULL,
	PRIMARY KEY (run_id, series, idx)
)`

const insertPoint = `
	INSERT INTO points (run_id, series, idx, x, y, received_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (run_id, series, idx) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PointMsg is one merged point on its way to the database.
type PointMsg struct {
	RunID      uuid.UUID
	Series     string
	Index      int
	X          float64
	Y          float64
	ReceivedAt time.Time
}

type pointRow struct {
	RunID      uuid.UUID
	Series     string
	Idx        int32
	X          float64
	Y          float64
	ReceivedAt int64 // unix microseconds
}

// PointWriter queues merged points and writes them in batches.
type PointWriter struct {
	cfg    WriterConfig
	runID  uuid.UUID
	logger *slog.Logger
	now    func() time.Time

	input *buffer.Queue[PointMsg]
	db    DB

	batch   []pointRow
	batchMu sync.Mutex

	// ctx stops the loops; base outlives it so in-flight inserts finish.
	ctx      context.Context
	cancel   context.CancelFunc
	base     context.Context
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	metrics WriterMetrics
}

// NewPointWriter creates a writer for one polling run.
func NewPointWriter(cfg WriterConfig, runID uuid.UUID, db DB, logger *slog.Logger) *PointWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultWriterConfig().FlushTimeout
	}
	return &PointWriter{
		cfg:    cfg,
		runID:  runID,
		logger: logger.With("run_id", runID),
		now:    time.Now,
		input:  buffer.New[PointMsg](cfg.QueueSize),
		db:     db,
		batch:  make([]pointRow, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the points table if it does not exist.
func (w *PointWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create points table: %w", err)
	}
	return nil
}

// HandleMerge queues the merged points. It implements poller.MergeHandler.
func (w *PointWriter) HandleMerge(m poller.Merge) error {
	receivedAt := w.now()
	msgs := make([]PointMsg, len(m.Points))
	for i, p := range m.Points {
		msgs[i] = PointMsg{
			RunID:      w.runID,
			Series:     m.Series,
			Index:      m.Offset + i,
			X:          p.X,
			Y:          p.Y,
			ReceivedAt: receivedAt,
		}
	}
	if !w.input.Push(msgs...) {
		return ErrClosed
	}

	w.batchMu.Lock()
	w.metrics.Queued += int64(len(msgs))
	w.batchMu.Unlock()
	return nil
}

// Start begins consuming queued points.
func (w *PointWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.base = context.WithoutCancel(ctx)
	w.stopCh = make(chan struct{})

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("point writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the queue, lets the loops drain it, then writes what is left.
// In-flight inserts are not cancelled; each is bounded by FlushTimeout.
func (w *PointWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping point writer")

	w.input.Close()
	w.stopOnce.Do(func() {
		if w.stopCh != nil {
			close(w.stopCh)
		}
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if w.cancel != nil {
			w.cancel()
		}
		w.logger.Warn("point writer stop timed out")
		return ctx.Err()
	}
	if w.cancel != nil {
		w.cancel()
	}

	for {
		msgs := w.input.Drain(w.cfg.BatchSize)
		if msgs == nil {
			break
		}
		w.add(msgs)
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.FlushTimeout)
	defer cancel()
	w.flush(flushCtx)

	st := w.Stats()
	w.logger.Info("point writer stopped",
		"inserts", st.Inserts,
		"conflicts", st.Conflicts,
		"errors", st.Errors,
	)
	return nil
}

// Stats returns current metrics.
func (w *PointWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *PointWriter) consumeLoop() {
	defer w.wg.Done()

	for w.input.Wait(w.ctx) {
		if w.add(w.input.Drain(w.cfg.BatchSize)) {
			w.flushWithTimeout()
		}
	}
}

func (w *PointWriter) flushLoop() {
	defer w.wg.Done()

	if w.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.flushWithTimeout()
		}
	}
}

// flushWithTimeout flushes on a context that survives Stop and the caller's
// cancellation, bounded by FlushTimeout.
func (w *PointWriter) flushWithTimeout() {
	ctx, cancel := context.WithTimeout(w.base, w.cfg.FlushTimeout)
	defer cancel()
	w.flush(ctx)
}

// add batches msgs and reports whether the batch is full.
func (w *PointWriter) add(msgs []PointMsg) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	for _, m := range msgs {
		w.batch = append(w.batch, transform(m))
	}
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(m PointMsg) pointRow {
	return pointRow{
		RunID:      m.RunID,
		Series:     m.Series,
		Idx:        int32(m.Index),
		X:          m.X,
		Y:          m.Y,
		ReceivedAt: m.ReceivedAt.UnixMicro(),
	}
}

func (w *PointWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]pointRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

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

	w.logger.Debug("flushed points",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *PointWriter) batchInsert(ctx context.Context, rows []pointRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertPoint, r.RunID, r.Series, r.Idx, r.X, r.Y, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
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
