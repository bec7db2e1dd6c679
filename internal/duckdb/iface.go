package duckdb

import "github.com/tinytelemetry/phishcatch/internal/model"

// Type aliases re-export model interfaces so consumers that import duckdb
// for these do not also need the model package.
type DetectionQuery = model.DetectionQuery
type DetectionQuerier = model.DetectionQuerier
type DetectionWriter = model.DetectionWriter
