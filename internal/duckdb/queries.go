package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"strings"
	"time"
)

const (
	// DefaultRecentLimit is used when a query does not set a limit.
	DefaultRecentLimit = 100
	// MaxRecentLimit caps the rows returned by RecentDetections.
	MaxRecentLimit = 1000
)

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

// TotalDetectionCount returns the number of indexed detections.
func (s *Store) TotalDetectionCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`).Scan(&count)
	return count, err
}

// RecentDetections returns the newest detections matching q, newest first.
func (s *Store) RecentDetections(q DetectionQuery) ([]DetectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	conditions := []string{"score >= ?"}
	args := []interface{}{q.MinScore}

	if q.Domain != "" {
		conditions = append(conditions, "contains(domain, ?)")
		args = append(args, strings.ToLower(q.Domain))
	}
	if q.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, q.RunID)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, q.Since)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	args = append(args, limit)

	query := "SELECT timestamp, domain, score, bucket, CAST(tags AS VARCHAR) AS tags, raw_data FROM detections" +
		" WHERE " + strings.Join(conditions, " AND ") +
		" ORDER BY timestamp DESC, id DESC LIMIT ?"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DetectionRecord
	for rows.Next() {
		var r DetectionRecord
		var tagsJSON sql.NullString
		var raw sql.NullString
		if err := rows.Scan(&r.Timestamp, &r.Domain, &r.Score, &r.Bucket, &tagsJSON, &raw); err != nil {
			log.Printf("duckdb scan error (RecentDetections): %v", err)
			continue
		}
		r.Time = float64(r.Timestamp.UnixMicro()) / 1e6
		r.Tags = []string{}
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &r.Tags); err != nil {
				log.Printf("duckdb: bad tags for %s: %v", r.Domain, err)
			}
		}
		if raw.Valid && raw.String != "" {
			r.RawEvent = json.RawMessage(raw.String)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// BucketCounts returns detection counts per severity bucket, highest bucket first.
func (s *Store) BucketCounts() ([]BucketCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, COUNT(*) AS cnt
		FROM detections
		GROUP BY bucket
		ORDER BY bucket DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []BucketCount
	for rows.Next() {
		var bc BucketCount
		if err := rows.Scan(&bc.Bucket, &bc.Count); err != nil {
			log.Printf("duckdb scan error (BucketCounts): %v", err)
			continue
		}
		results = append(results, bc)
	}
	return results, rows.Err()
}

// TopTags returns the most frequent scoring tags across indexed detections.
func (s *Store) TopTags(limit int) ([]TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS cnt
		FROM (SELECT UNNEST(from_json(tags, '["VARCHAR"]')) AS tag FROM detections)
		GROUP BY tag
		ORDER BY cnt DESC, tag ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			log.Printf("duckdb scan error (TopTags): %v", err)
			continue
		}
		results = append(results, tc)
	}
	return results, rows.Err()
}

// DeleteBefore removes detections indexed before cutoff and returns the number deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM detections WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
