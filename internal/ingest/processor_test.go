package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/tinytelemetry/phishcatch/internal/alert"
	"github.com/tinytelemetry/phishcatch/internal/bucketlog"
	"github.com/tinytelemetry/phishcatch/internal/metrics"
	"github.com/tinytelemetry/phishcatch/internal/model"
	"github.com/tinytelemetry/phishcatch/internal/scoring"
	"github.com/tinytelemetry/phishcatch/internal/suspicious"
)

type recordingNotifier struct {
	alerts []alert.Alert
}

func (n *recordingNotifier) Notify(a alert.Alert) {
	n.alerts = append(n.alerts, a)
}

type recordingSink struct {
	records []*model.DetectionRecord
	failFor string
}

func (s *recordingSink) Add(record *model.DetectionRecord) error {
	if record.Domain == s.failFor {
		return errors.New("disk full")
	}
	s.records = append(s.records, record)
	return nil
}

type recordingIndex struct {
	records []*model.DetectionRecord
}

func (i *recordingIndex) Add(record *model.DetectionRecord) {
	i.records = append(i.records, record)
}

var fixedNow = time.Date(2026, 10, 14, 15, 4, 5, 0, time.Local)

func newTestScorer(t *testing.T) *scoring.Scorer {
	t.Helper()
	cfg, err := suspicious.Default()
	if err != nil {
		t.Fatalf("suspicious.Default: %v", err)
	}
	return scoring.New(cfg)
}

func newFileProcessor(t *testing.T) (*Processor, *bucketlog.Writer, *recordingNotifier) {
	t.Helper()
	w, err := bucketlog.Open(t.TempDir(), "test-run")
	if err != nil {
		t.Fatalf("bucketlog.Open: %v", err)
	}
	notifier := &recordingNotifier{}
	p := NewProcessor(newTestScorer(t), w, ProcessorConfig{
		FreeCAMarker: model.DefaultFreeCAMarker,
		Notifier:     notifier,
		Metrics:      metrics.NewPipeline(),
		Now:          func() time.Time { return fixedNow },
	})
	return p, w, notifier
}

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "pc_*.log"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	return matches
}

func TestProcessEnvelope_LetsEncryptPhish(t *testing.T) {
	t.Parallel()

	p, w, notifier := newFileProcessor(t)

	line := `{"message_type":"certificate_update","data":{"leaf_cert":{"all_domains":["PayPal-Secure-Login.com"]},` +
		`"chain":[{"subject":{"aggregated":"/C=US/O=Let's Encrypt/CN=R3"}}]}}`

	result := p.ProcessEnvelope(model.IngestEnvelope{Source: "certstream", Line: line})
	if result == nil || len(result.Scores) != 1 {
		t.Fatalf("result = %+v, want one score", result)
	}

	got := result.Scores[0]
	wantTags := []string{
		"has keyword: login",
		"has keyword: secure",
		"has keyword: paypal",
		TagFreeCA,
	}
	if got.Domain != "paypal-secure-login.com" {
		t.Fatalf("domain = %q, want lowercased", got.Domain)
	}
	if got.Score != 321 {
		t.Fatalf("score = %d, want 321 (tags %q)", got.Score, got.Tags)
	}
	if !reflect.DeepEqual(got.Tags, wantTags) {
		t.Fatalf("tags = %q, want %q", got.Tags, wantTags)
	}

	if len(notifier.alerts) != 1 || notifier.alerts[0].Label != "Suspicious" {
		t.Fatalf("alerts = %+v, want one Suspicious alert", notifier.alerts)
	}

	records, err := bucketlog.ReadFile(w.Path(fixedNow, 100))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Domain != "paypal-secure-login.com" || rec.Score != 321 {
		t.Fatalf("record = %+v", rec)
	}
	if !reflect.DeepEqual(rec.Tags, wantTags) {
		t.Fatalf("record tags = %q, want %q", rec.Tags, wantTags)
	}
	if string(rec.RawEvent) != line {
		t.Fatalf("raw_data = %s, want original line", rec.RawEvent)
	}
	if rec.Time != float64(fixedNow.Unix()) {
		t.Fatalf("time = %v, want %v", rec.Time, float64(fixedNow.Unix()))
	}

	if files := logFiles(t, w.Dir()); len(files) != 1 {
		t.Fatalf("log files = %v, want only the bucket 100 file", files)
	}
}

func TestProcessEnvelope_Heartbeat(t *testing.T) {
	t.Parallel()

	p, w, notifier := newFileProcessor(t)

	result := p.ProcessEnvelope(model.IngestEnvelope{Line: `{"message_type":"heartbeat","timestamp":1.5}`})
	if result == nil || len(result.Scores) != 0 {
		t.Fatalf("heartbeat result = %+v, want no scores", result)
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("heartbeat alerts = %d, want 0", len(notifier.alerts))
	}
	if files := logFiles(t, w.Dir()); len(files) != 0 {
		t.Fatalf("heartbeat produced files: %v", files)
	}
}

func TestProcessEnvelope_EmptyDomainList(t *testing.T) {
	t.Parallel()

	p, w, _ := newFileProcessor(t)

	result := p.ProcessEnvelope(model.IngestEnvelope{
		Line: `{"message_type":"certificate_update","data":{"leaf_cert":{"all_domains":[]},"chain":[]}}`,
	})
	if result == nil {
		t.Fatal("empty domain list should still be accepted")
	}
	if len(result.Scores) != 0 {
		t.Fatalf("scores = %d, want 0", len(result.Scores))
	}
	if files := logFiles(t, w.Dir()); len(files) != 0 {
		t.Fatalf("empty domain list produced files: %v", files)
	}
}

func TestProcessEnvelope_MalformedLineDropped(t *testing.T) {
	t.Parallel()

	p, w, _ := newFileProcessor(t)
	if result := p.ProcessEnvelope(model.IngestEnvelope{Line: "garbage"}); result != nil {
		t.Fatalf("malformed result = %+v, want nil", result)
	}
	if files := logFiles(t, w.Dir()); len(files) != 0 {
		t.Fatalf("malformed line produced files: %v", files)
	}
}

func TestProcess_EmptyChainSkipsFreeCABonus(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(newTestScorer(t), sink, ProcessorConfig{FreeCAMarker: model.DefaultFreeCAMarker})

	event := &model.CertificateUpdateEvent{
		MessageType: model.MessageTypeCertificateUpdate,
		Data: model.CertificateData{
			LeafCert: model.Certificate{AllDomains: []string{"paypal-secure-login.com"}},
		},
	}
	scores := p.Process(event)
	if len(scores) != 1 || scores[0].Score != 311 {
		t.Fatalf("scores = %+v, want 311 without bonus", scores)
	}
	for _, tag := range scores[0].Tags {
		if tag == TagFreeCA {
			t.Fatal("free CA tag applied with empty chain")
		}
	}
}

func TestProcess_OtherIssuerNoBonus(t *testing.T) {
	t.Parallel()

	p := NewProcessor(newTestScorer(t), &recordingSink{}, ProcessorConfig{FreeCAMarker: model.DefaultFreeCAMarker})
	event := &model.CertificateUpdateEvent{
		MessageType: model.MessageTypeCertificateUpdate,
		Data: model.CertificateData{
			LeafCert: model.Certificate{AllDomains: []string{"example.com"}},
			Chain:    []model.Certificate{{Subject: model.Subject{Aggregated: "/C=US/O=DigiCert Inc/CN=DigiCert TLS"}}},
		},
	}
	if scores := p.Process(event); scores[0].Score != 138 {
		t.Fatalf("score = %d, want 138", scores[0].Score)
	}
}

func TestProcess_EveryDomainPersistedInOrder(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	index := &recordingIndex{}
	notifier := &recordingNotifier{}
	p := NewProcessor(newTestScorer(t), sink, ProcessorConfig{
		FreeCAMarker:  model.DefaultFreeCAMarker,
		Notifier:      notifier,
		Index:         index,
		IndexMinScore: 200,
		Now:           func() time.Time { return fixedNow },
	})

	event := &model.CertificateUpdateEvent{
		MessageType: model.MessageTypeCertificateUpdate,
		Data: model.CertificateData{
			LeafCert: model.Certificate{AllDomains: []string{"a", "paypal-secure-login.com", "example.com"}},
		},
	}
	scores := p.Process(event)

	if len(sink.records) != 3 {
		t.Fatalf("persisted = %d, want 3 (score 0 records included)", len(sink.records))
	}
	for i, want := range []string{"a", "paypal-secure-login.com", "example.com"} {
		if sink.records[i].Domain != want || scores[i].Domain != want {
			t.Fatalf("record[%d] = %q, want %q", i, sink.records[i].Domain, want)
		}
	}
	if sink.records[0].Score != 0 || sink.records[0].Bucket != 0 {
		t.Fatalf("single rune domain = %+v, want score 0 bucket 0", sink.records[0])
	}
	if sink.records[2].Bucket != 100 {
		t.Fatalf("example.com bucket = %d, want 100", sink.records[2].Bucket)
	}

	if len(index.records) != 1 || index.records[0].Domain != "paypal-secure-login.com" {
		t.Fatalf("indexed = %+v, want only the record at or above 200", index.records)
	}
	if len(notifier.alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(notifier.alerts))
	}

	sink.records[1].Tags[0] = "mutated"
	if scores[1].Tags[0] == "mutated" {
		t.Fatal("record tags must not share storage with the returned score")
	}
}

func TestProcess_PersistErrorIsPerRecord(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failFor: "bad.com"}
	p := NewProcessor(newTestScorer(t), sink, ProcessorConfig{Metrics: metrics.NewPipeline()})

	event := &model.CertificateUpdateEvent{
		MessageType: model.MessageTypeCertificateUpdate,
		Data: model.CertificateData{
			LeafCert: model.Certificate{AllDomains: []string{"bad.com", "good.com"}},
		},
	}
	scores := p.Process(event)
	if len(scores) != 2 {
		t.Fatalf("scores = %d, want 2", len(scores))
	}
	if len(sink.records) != 1 || sink.records[0].Domain != "good.com" {
		t.Fatalf("records = %+v, want good.com only", sink.records)
	}
}

func TestProcess_NilAndUnknownEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(newTestScorer(t), sink)

	if scores := p.Process(nil); scores != nil {
		t.Fatalf("nil event scores = %v", scores)
	}
	unknown := &model.CertificateUpdateEvent{
		MessageType: "something_else",
		Data:        model.CertificateData{LeafCert: model.Certificate{AllDomains: []string{"a.com"}}},
	}
	if scores := p.Process(unknown); scores != nil {
		t.Fatalf("unknown type scores = %v", scores)
	}
	heartbeat := &model.CertificateUpdateEvent{
		MessageType: model.MessageTypeHeartbeat,
		Data:        model.CertificateData{LeafCert: model.Certificate{AllDomains: []string{"paypal-login.com"}}},
	}
	if scores := p.Process(heartbeat); scores != nil {
		t.Fatalf("heartbeat scores = %v", scores)
	}
	if len(sink.records) != 0 {
		t.Fatalf("records = %d, want 0", len(sink.records))
	}
}

func TestProcessor_Name(t *testing.T) {
	t.Parallel()

	var p EnvelopeProcessor = NewProcessor(newTestScorer(t), nil)
	if p.Name() != ProcessorNameCertstream {
		t.Fatalf("Name = %q, want %q", p.Name(), ProcessorNameCertstream)
	}
}

func TestProcessEnvelope_WritesToLocalHourFile(t *testing.T) {
	t.Parallel()

	p, w, _ := newFileProcessor(t)
	p.ProcessEnvelope(model.IngestEnvelope{
		Line: `{"message_type":"certificate_update","data":{"leaf_cert":{"all_domains":["a"]}}}`,
	})

	want := filepath.Join(w.Dir(), "pc_test-run.2026-10-14-15.0.log")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected %s: %v", want, err)
	}
}
