package model

// IngestEnvelope carries one raw certstream message with source metadata.
// It is the transport contract between input plugins and processing.
type IngestEnvelope struct {
	Source string
	Line   string
}
