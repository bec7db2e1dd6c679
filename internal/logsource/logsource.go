package logsource

import "github.com/tinytelemetry/phishcatch/internal/model"

// LogSource is a unified interface for all message input sources (certstream, TCP, stdin).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of message lines
	Stop()                              // graceful shutdown
	Name() string                       // "certstream", "tcp", "stdin"
}
