package model

import "time"

// DetectionQuery holds optional filters for detection lookups.
type DetectionQuery struct {
	MinScore int
	Domain   string // substring match, empty = all
	RunID    string // empty = all runs
	Since    time.Time
	Limit    int
}

// DetectionQuerier provides read-only queries on indexed detections.
type DetectionQuerier interface {
	TotalDetectionCount() (int64, error)
	RecentDetections(q DetectionQuery) ([]DetectionRecord, error)
	BucketCounts() ([]BucketCount, error)
	TopTags(limit int) ([]TagCount, error)
}

// DetectionWriter provides append-oriented writes for indexed detections.
type DetectionWriter interface {
	InsertDetectionBatch(records []*DetectionRecord) error
}
