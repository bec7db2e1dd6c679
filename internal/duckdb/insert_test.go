package duckdb

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestInsertBuffer_AddAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for i := 0; i < 10; i++ {
		buf.Add(detection("test.example.com", 70, 65, time.Now()))
	}

	// Stop should flush all pending records
	buf.Stop()

	count, err := store.TotalDetectionCount()
	if err != nil {
		t.Fatalf("TotalDetectionCount: %v", err)
	}
	if count != 10 {
		t.Errorf("after Stop, TotalDetectionCount = %d, want 10", count)
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 50, FlushInterval: time.Hour})

	for i := 0; i < 120; i++ {
		buf.Add(detection("batch.example.com", 70, 65, time.Now()))
	}

	buf.Stop()

	count, err := store.TotalDetectionCount()
	if err != nil {
		t.Fatalf("TotalDetectionCount: %v", err)
	}
	if count != 120 {
		t.Errorf("after batch insert, TotalDetectionCount = %d, want 120", count)
	}
}

func TestInsertBuffer_ConcurrentAdd(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 50

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < recordsPerGoroutine; i++ {
				buf.Add(detection("concurrent.example.com", 70, 65, time.Now()))
			}
		}()
	}

	wg.Wait()
	buf.Stop()

	expected := int64(numGoroutines * recordsPerGoroutine)
	count, err := store.TotalDetectionCount()
	if err != nil {
		t.Fatalf("TotalDetectionCount: %v", err)
	}
	if count != expected {
		t.Errorf("concurrent insert TotalDetectionCount = %d, want %d", count, expected)
	}
}

func TestInsertBuffer_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	buf.Add(detection("idempotent.example.com", 70, 65, time.Now()))
	buf.Add(nil)

	buf.Stop()
	buf.Stop()

	count, err := store.TotalDetectionCount()
	if err != nil {
		t.Fatalf("TotalDetectionCount: %v", err)
	}
	if count != 1 {
		t.Errorf("after double Stop, TotalDetectionCount = %d, want 1", count)
	}
}

type failingWriter struct {
	mu    sync.Mutex
	calls int
}

func (w *failingWriter) InsertDetectionBatch(records []*DetectionRecord) error {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	return errors.New("index unavailable")
}

func TestInsertBuffer_WriterErrorsAreLogged(t *testing.T) {
	w := &failingWriter{}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 1})

	buf.Add(detection("a.com", 70, 65, time.Now()))
	buf.Add(detection("b.com", 70, 65, time.Now()))
	buf.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.calls != 2 {
		t.Errorf("writer calls = %d, want 2", w.calls)
	}
}
