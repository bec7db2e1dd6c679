package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/phishcatch/internal/model"
)

const (
	// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
	DefaultFlushQueueSize = 64

	DefaultBatchSize     = 500
	DefaultFlushInterval = 250 * time.Millisecond
)

// InsertBuffer batches detection records and flushes them to DuckDB asynchronously.
// Add() never blocks on DuckDB writes - records are sent to a flush goroutine.
// Add must not be called concurrently with or after Stop.
type InsertBuffer struct {
	writer        model.DetectionWriter
	mu            sync.Mutex
	pending       []*DetectionRecord
	flushChan     chan []*DetectionRecord // async flush queue
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup // separate WaitGroup for tickLoop
	stopOnce      sync.Once

	// backpressureCount tracks inline flushes for throttled logging.
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix timestamp of last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
}

// NewInsertBuffer creates a new insert buffer that flushes to writer.
// The flush goroutine processes batches asynchronously so Add() never blocks on IO.
func NewInsertBuffer(writer model.DetectionWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := DefaultBatchSize
	flushInterval := DefaultFlushInterval
	flushQueueSize := DefaultFlushQueueSize
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]*DetectionRecord, 0, batchSize),
		flushChan:     make(chan []*DetectionRecord, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

// tickLoop periodically drains the pending buffer.
func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending() // final drain
			return
		}
	}
}

// logBackpressure emits a throttled warning (at most once per 10 seconds) when
// the flush channel is full and an inline flush is triggered.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure, %d inline flushes (flush channel full, index falling behind)", count)
	}
}

// drainPending moves pending records to the flush channel without blocking on DuckDB.
func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]*DetectionRecord, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch, "inline")
}

// enqueue hands a batch to the flush worker, flushing synchronously when the
// queue is full.
func (b *InsertBuffer) enqueue(batch []*DetectionRecord, mode string) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.writer.InsertDetectionBatch(batch); err != nil {
			log.Printf("duckdb flush error (%s): %v", mode, err)
		}
	}
}

// flushWorker processes batches from the flush channel.
func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.writer.InsertDetectionBatch(batch); err != nil {
			log.Printf("duckdb flush error: %v", err)
		}
	}
}

// Add queues a record for batch insertion. This never blocks on DuckDB IO.
func (b *InsertBuffer) Add(record *DetectionRecord) {
	if record == nil {
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, record)
	var batch []*DetectionRecord
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]*DetectionRecord, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch, "overflow-inline")
	}
}

// Stop flushes remaining records and waits for all writes to complete.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// Wait for tickLoop to finish its final drain before closing flushChan,
		// ensuring all pending records are sent to the flush channel.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
	})
}

// InsertDetectionBatch appends a batch of detection records into DuckDB in a single
// transaction. If the batch fails, it is retried record-by-record to salvage as many
// records as possible.
func (s *Store) InsertDetectionBatch(records []*DetectionRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, records)
	if err == nil {
		return nil
	}

	var failed int
	for _, r := range records {
		if rerr := s.insertBatchTx(ctx, []*DetectionRecord{r}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping detection (domain=%s score=%d): %v", r.Domain, r.Score, rerr)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d detections dropped", failed, len(records))
	}
	return nil
}

// insertBatchTx inserts records in a single transaction.
func (s *Store) insertBatchTx(ctx context.Context, records []*DetectionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO detections (timestamp, domain, score, bucket, tags, raw_data, run_id) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}

		ts := r.Timestamp
		if ts.IsZero() {
			ts = timeFromEpoch(r.Time)
		}

		var raw any
		if len(r.RawEvent) > 0 {
			raw = string(r.RawEvent)
		}

		if _, err := stmt.ExecContext(
			ctx,
			ts, r.Domain, r.Score, r.Bucket, string(tagsJSON), raw, s.RunID,
		); err != nil {
			return fmt.Errorf("detection insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func timeFromEpoch(sec float64) time.Time {
	if sec <= 0 {
		return time.Now()
	}
	return time.Unix(0, int64(sec*float64(time.Second)))
}
