package model

import (
	"encoding/json"
	"time"
)

// Certstream message types.
const (
	MessageTypeHeartbeat         = "heartbeat"
	MessageTypeCertificateUpdate = "certificate_update"
)

// CertificateUpdateEvent is one certstream message.
// Raw holds the payload exactly as received so it can be logged verbatim.
type CertificateUpdateEvent struct {
	MessageType string          `json:"message_type"`
	Data        CertificateData `json:"data"`
	Raw         json.RawMessage `json:"-"`
}

// CertificateData carries the leaf certificate and its issuer chain.
type CertificateData struct {
	UpdateType string        `json:"update_type"`
	CertIndex  int64         `json:"cert_index"`
	CertLink   string        `json:"cert_link"`
	Seen       float64       `json:"seen"`
	Source     LogSourceInfo `json:"source"`
	LeafCert   Certificate   `json:"leaf_cert"`
	Chain      []Certificate `json:"chain"`
}

// LogSourceInfo names the CT log a certificate was observed in.
type LogSourceInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Certificate is the subset of certstream certificate fields used for scoring.
type Certificate struct {
	AllDomains  []string `json:"all_domains"`
	Fingerprint string   `json:"fingerprint"`
	NotBefore   float64  `json:"not_before"`
	NotAfter    float64  `json:"not_after"`
	Subject     Subject  `json:"subject"`
	Issuer      Subject  `json:"issuer"`
}

// Subject is a distinguished name. Aggregated is the "/C=../O=../CN=.." form.
type Subject struct {
	CN         string `json:"CN"`
	O          string `json:"O"`
	C          string `json:"C"`
	Aggregated string `json:"aggregated"`
}

// IsHeartbeat reports whether the event is a liveness signal only.
func (e *CertificateUpdateEvent) IsHeartbeat() bool {
	return e.MessageType == MessageTypeHeartbeat
}

// IssuerSubject returns the aggregated subject of the first chain entry,
// or "" when the chain is empty.
func (e *CertificateUpdateEvent) IssuerSubject() string {
	if len(e.Data.Chain) == 0 {
		return ""
	}
	return e.Data.Chain[0].Subject.Aggregated
}

// DomainScore is the scoring outcome for a single domain.
type DomainScore struct {
	Domain string
	Score  int
	Tags   []string
}

// DetectionRecord is the persisted unit written once per scored domain.
type DetectionRecord struct {
	Tags     []string        `json:"tags"`
	Domain   string          `json:"domain"`
	Score    int             `json:"score"`
	Time     float64         `json:"time"`
	RawEvent json.RawMessage `json:"raw_data"`

	Bucket    int       `json:"-"`
	Timestamp time.Time `json:"-"`
}

// BucketCount is the number of indexed detections in one severity bucket.
type BucketCount struct {
	Bucket int
	Count  int64
}

// TagCount is the number of indexed detections carrying one tag.
type TagCount struct {
	Tag   string
	Count int64
}
