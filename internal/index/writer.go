package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const writerBatchSize = 64

const (
	QueuePressureOK        = "ok"
	QueuePressureElevated  = "elevated"
	QueuePressureHigh      = "high"
	QueuePressureSaturated = "saturated"
)

// DiagnosticsReader exposes runtime queue and drop diagnostics.
type DiagnosticsReader interface {
	PipelineDiagnostics() PipelineDiagnostics
}

// PipelineDiagnostics is a snapshot of the index write pipeline.
type PipelineDiagnostics struct {
	QueueCapacity           int              `json:"queue_capacity"`
	QueueDepth              int              `json:"queue_depth"`
	QueueDepthHighWatermark int              `json:"queue_depth_high_watermark"`
	QueueUtilizationPct     int              `json:"queue_utilization_pct"`
	QueuePressureState      string           `json:"queue_pressure_state"`
	EnqueueAcceptedTotal    int64            `json:"enqueue_accepted_total"`
	EnqueueDroppedTotal     int64            `json:"enqueue_dropped_total"`
	WrittenTotal            int64            `json:"written_total"`
	WriteDroppedTotal       int64            `json:"write_dropped_total"`
	TotalDroppedTotal       int64            `json:"total_dropped_total"`
	LastEnqueueDropAt       *time.Time       `json:"last_enqueue_drop_at,omitempty"`
	LastWriteDropAt         *time.Time       `json:"last_write_drop_at,omitempty"`
	LastWriteDropOperation  string           `json:"last_write_drop_operation,omitempty"`
	WriteFailuresByClass    map[string]int64 `json:"write_failures_by_class,omitempty"`
	StoreDriver             string           `json:"store_driver,omitempty"`
}

// WriteFailure describes index records that could not be persisted.
type WriteFailure struct {
	Operation   string
	BatchSize   int
	FailedCount int
	Err         error
	ErrorClass  string
}

// WriterHooks are optional callbacks invoked by the Writer. They must not
// block.
type WriterHooks struct {
	OnDrop         func()
	OnWriteFailure func(WriteFailure)
	OnFlush        func(batchSize int, duration time.Duration)
}

// Writer persists records asynchronously in batches. Enqueue never blocks;
// records are dropped and counted when the queue is full.
type Writer struct {
	store  RecordWriter
	driver string
	queue  chan *Record
	hooks  WriterHooks
	wg     sync.WaitGroup

	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}
	queueMu  sync.RWMutex
	cancelMu sync.Mutex
	cancel   context.CancelFunc

	highWatermark   atomic.Int64
	enqueueAccepted atomic.Int64
	enqueueDropped  atomic.Int64
	written         atomic.Int64
	writeDropped    atomic.Int64
	lastEnqueueDrop atomic.Int64

	failureMu         sync.Mutex
	failuresByClass   map[string]int64
	lastWriteDrop     time.Time
	lastWriteDropOper string
}

func NewWriter(store RecordWriter, bufferSize int, hooks WriterHooks) *Writer {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	w := &Writer{
		store:           store,
		queue:           make(chan *Record, bufferSize),
		hooks:           hooks,
		done:            make(chan struct{}),
		failuresByClass: make(map[string]int64),
	}
	if named, ok := store.(interface{ Driver() string }); ok {
		w.driver = named.Driver()
	}
	return w
}

// QueueLen returns the number of records waiting to be written.
func (w *Writer) QueueLen() int {
	if w == nil {
		return 0
	}
	return len(w.queue)
}

func (w *Writer) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancelMu.Lock()
	w.cancel = cancel
	w.cancelMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.markDone()
		w.run(workerCtx)
	}()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case first, ok := <-w.queue:
			if !ok {
				return
			}
			batch := make([]*Record, 0, writerBatchSize)
			if first != nil {
				batch = append(batch, first)
			}
		fill:
			for len(batch) < writerBatchSize {
				select {
				case <-ctx.Done():
					// Flush what was already dequeued with a live context.
					w.flush(context.Background(), batch)
					return
				case next, ok := <-w.queue:
					if !ok {
						w.flush(context.Background(), batch)
						return
					}
					if next != nil {
						batch = append(batch, next)
					}
				default:
					break fill
				}
			}
			w.flush(ctx, batch)
		}
	}
}

// Enqueue offers record to the pipeline and reports whether it was accepted.
func (w *Writer) Enqueue(record *Record) bool {
	if w.stopped.Load() {
		return false
	}
	w.queueMu.RLock()
	defer w.queueMu.RUnlock()
	if w.stopped.Load() {
		return false
	}

	select {
	case w.queue <- record:
		w.enqueueAccepted.Add(1)
		w.observeQueueDepth(len(w.queue))
		return true
	default:
		w.enqueueDropped.Add(1)
		w.observeQueueDepth(cap(w.queue))
		w.lastEnqueueDrop.Store(time.Now().UTC().UnixNano())
		if w.hooks.OnDrop != nil {
			w.hooks.OnDrop()
		}
		return false
	}
}

func (w *Writer) Stop() {
	_ = w.Shutdown(context.Background())
}

// Shutdown stops accepting records and waits for queued ones to flush, or
// for ctx to end.
func (w *Writer) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.stopOnce.Do(func() {
		w.stopped.Store(true)
		w.queueMu.Lock()
		close(w.queue)
		w.queueMu.Unlock()
		if !w.started.Load() {
			w.markDone()
		}
	})

	select {
	case <-w.done:
		w.wg.Wait()
		w.cancelWorker()
		return nil
	case <-ctx.Done():
		w.cancelWorker()
		return ctx.Err()
	}
}

func (w *Writer) cancelWorker() {
	w.cancelMu.Lock()
	cancel := w.cancel
	w.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Writer) markDone() {
	w.doneOnce.Do(func() {
		close(w.done)
	})
}

func (w *Writer) flush(ctx context.Context, batch []*Record) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	defer func() {
		if w.hooks.OnFlush != nil {
			w.hooks.OnFlush(len(batch), time.Since(start))
		}
	}()

	if len(batch) == 1 {
		if err := w.store.WriteRecord(ctx, batch[0]); err != nil {
			w.reportWriteFailure(WriteFailure{Operation: "write_record", BatchSize: 1, FailedCount: 1, Err: err})
			return
		}
		w.written.Add(1)
		return
	}

	batchErr := w.store.WriteBatch(ctx, batch)
	if batchErr == nil {
		w.written.Add(int64(len(batch)))
		return
	}
	// Retry one by one so a single bad record does not drop the batch.
	failed := 0
	var firstErr error
	for _, record := range batch {
		if err := w.store.WriteRecord(ctx, record); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		w.written.Add(1)
	}
	if failed > 0 {
		w.reportWriteFailure(WriteFailure{
			Operation:   "write_batch_fallback",
			BatchSize:   len(batch),
			FailedCount: failed,
			Err:         errors.Join(batchErr, firstErr),
		})
	}
}

func (w *Writer) reportWriteFailure(failure WriteFailure) {
	if failure.FailedCount <= 0 {
		return
	}
	failure.ErrorClass = ClassifyWriteError(failure.Err)
	w.writeDropped.Add(int64(failure.FailedCount))

	w.failureMu.Lock()
	w.failuresByClass[failure.ErrorClass] += int64(failure.FailedCount)
	w.lastWriteDrop = time.Now().UTC()
	if failure.Operation != "" {
		w.lastWriteDropOper = failure.Operation
	}
	w.failureMu.Unlock()

	if w.hooks.OnWriteFailure != nil {
		w.hooks.OnWriteFailure(failure)
	}
}

// PipelineDiagnostics returns a point-in-time snapshot of queue pressure and
// drop counters.
func (w *Writer) PipelineDiagnostics() PipelineDiagnostics {
	if w == nil {
		return PipelineDiagnostics{}
	}

	capacity := cap(w.queue)
	depth := len(w.queue)
	high := int(w.highWatermark.Load())
	if depth > high {
		high = depth
	}
	utilization := queueUtilizationPct(depth, capacity)
	enqueueDropped := w.enqueueDropped.Load()
	writeDropped := w.writeDropped.Load()

	snapshot := PipelineDiagnostics{
		QueueCapacity:           capacity,
		QueueDepth:              depth,
		QueueDepthHighWatermark: high,
		QueueUtilizationPct:     utilization,
		QueuePressureState:      queuePressureState(utilization),
		EnqueueAcceptedTotal:    w.enqueueAccepted.Load(),
		EnqueueDroppedTotal:     enqueueDropped,
		WrittenTotal:            w.written.Load(),
		WriteDroppedTotal:       writeDropped,
		TotalDroppedTotal:       enqueueDropped + writeDropped,
		StoreDriver:             w.driver,
	}
	if ts := w.lastEnqueueDrop.Load(); ts > 0 {
		last := time.Unix(0, ts).UTC()
		snapshot.LastEnqueueDropAt = &last
	}

	w.failureMu.Lock()
	defer w.failureMu.Unlock()
	if !w.lastWriteDrop.IsZero() {
		last := w.lastWriteDrop
		snapshot.LastWriteDropAt = &last
	}
	snapshot.LastWriteDropOperation = w.lastWriteDropOper
	if len(w.failuresByClass) > 0 {
		snapshot.WriteFailuresByClass = make(map[string]int64, len(w.failuresByClass))
		for class, count := range w.failuresByClass {
			snapshot.WriteFailuresByClass[class] = count
		}
	}
	return snapshot
}

func (w *Writer) observeQueueDepth(depth int) {
	value := int64(depth)
	for {
		current := w.highWatermark.Load()
		if value <= current || w.highWatermark.CompareAndSwap(current, value) {
			return
		}
	}
}

func queueUtilizationPct(depth, capacity int) int {
	if capacity <= 0 || depth <= 0 {
		return 0
	}
	if depth >= capacity {
		return 100
	}
	return int((int64(depth) * 100) / int64(capacity))
}

func queuePressureState(utilizationPct int) string {
	switch {
	case utilizationPct >= 100:
		return QueuePressureSaturated
	case utilizationPct >= 80:
		return QueuePressureHigh
	case utilizationPct >= 50:
		return QueuePressureElevated
	default:
		return QueuePressureOK
	}
}
