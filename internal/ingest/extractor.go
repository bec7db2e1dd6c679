package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tinytelemetry/phishcatch/internal/model"
)

// ErrMalformedMessage is returned for lines that are not certstream JSON.
var ErrMalformedMessage = errors.New("ingest: malformed certstream message")

// ParseCertstreamMessage decodes one certstream JSON message. The returned
// event keeps the payload bytes verbatim in Raw.
func ParseCertstreamMessage(line string) (*model.CertificateUpdateEvent, error) {
	raw := bytes.TrimSpace([]byte(line))
	if len(raw) == 0 || raw[0] != '{' {
		return nil, ErrMalformedMessage
	}

	var event model.CertificateUpdateEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if event.MessageType == "" {
		return nil, fmt.Errorf("%w: missing message_type", ErrMalformedMessage)
	}
	event.Raw = json.RawMessage(raw)
	return &event, nil
}

// AllDomains returns the leaf certificate domains of an update, or nil for
// any other message type.
func AllDomains(event *model.CertificateUpdateEvent) []string {
	if event == nil || event.MessageType != model.MessageTypeCertificateUpdate {
		return nil
	}
	return event.Data.LeafCert.AllDomains
}
