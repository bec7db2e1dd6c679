package duckdb

import "github.com/tinytelemetry/phishcatch/internal/model"

// Type aliases re-export model types used in Store method signatures.
type DetectionRecord = model.DetectionRecord
type BucketCount = model.BucketCount
type TagCount = model.TagCount
