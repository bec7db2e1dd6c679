package duckdb

import (
	"log"
	"sync"
	"time"
)

const (
	// DefaultRetention is how long indexed detections are kept.
	DefaultRetention = 30 * 24 * time.Hour

	defaultRetentionInterval = time.Hour
)

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	Retention time.Duration
	Interval  time.Duration
	Now       func() time.Time
}

// RetentionCleaner periodically deletes detections older than the configured retention period.
type RetentionCleaner struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewRetentionCleaner creates a retention cleaner that deletes expired detections.
// Returns nil when retention is negative (disabled).
func NewRetentionCleaner(store *Store, conf ...RetentionConfig) *RetentionCleaner {
	rc := &RetentionCleaner{
		store:     store,
		retention: DefaultRetention,
		interval:  defaultRetentionInterval,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	if len(conf) > 0 {
		c := conf[0]
		if c.Retention != 0 {
			rc.retention = c.Retention
		}
		if c.Interval > 0 {
			rc.interval = c.Interval
		}
		if c.Now != nil {
			rc.now = c.Now
		}
	}
	if rc.retention < 0 {
		return nil
	}

	// Startup cleanup to catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()

	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.now().Add(-rc.retention)

	rows, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("duckdb: retention cleanup error: %v", err)
		return
	}
	if rows > 0 {
		log.Printf("duckdb: retention cleanup deleted %d expired detections (older than %s)", rows, rc.retention)
	}
}

// Stop signals the cleaner to stop and waits for it to finish. Safe on nil.
func (rc *RetentionCleaner) Stop() {
	if rc == nil {
		return
	}
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
