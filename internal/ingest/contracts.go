package ingest

import (
	"github.com/tinytelemetry/phishcatch/internal/alert"
	"github.com/tinytelemetry/phishcatch/internal/model"
)

const (
	// ProcessorNameCertstream is the processor implementation name.
	ProcessorNameCertstream = "certstream"
)

// EnvelopeProcessor consumes source-tagged message lines and scores them.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
}

// RecordSink persists one detection record. Errors are reported per record.
type RecordSink interface {
	Add(record *model.DetectionRecord) error
}

// IndexSink queues a detection record for asynchronous indexing.
type IndexSink interface {
	Add(record *model.DetectionRecord)
}

// Notifier surfaces alerts for high-scoring domains.
type Notifier interface {
	Notify(alert.Alert)
}
