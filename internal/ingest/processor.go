package ingest

import (
	"log"
	"strings"
	"time"

	"github.com/tinytelemetry/phishcatch/internal/alert"
	"github.com/tinytelemetry/phishcatch/internal/metrics"
	"github.com/tinytelemetry/phishcatch/internal/model"
	"github.com/tinytelemetry/phishcatch/internal/scoring"
	"github.com/tinytelemetry/phishcatch/internal/severity"
)

const (
	// TagFreeCA is appended when the issuing CA hands out free certificates.
	TagFreeCA = "lets encrypt certificate"

	freeCAPoints = 10
)

// ProcessorConfig holds optional collaborators and tunables for the processor.
type ProcessorConfig struct {
	// FreeCAMarker is matched against the first chain entry's aggregated
	// subject. Empty disables the bonus.
	FreeCAMarker string
	Notifier     Notifier
	Index        IndexSink
	// IndexMinScore is the lowest score sent to Index.
	IndexMinScore int
	Metrics       *metrics.Pipeline
	Now           func() time.Time
}

// Processor scores every domain of a certificate update and persists the
// results. It is driven by a single consumer and holds no per-event state.
type Processor struct {
	scorer        *scoring.Scorer
	sink          RecordSink
	notifier      Notifier
	index         IndexSink
	indexMinScore int
	freeCAMarker  string
	metrics       *metrics.Pipeline
	now           func() time.Time
}

// ProcessResult holds the outcome of processing one message.
type ProcessResult struct {
	Source string
	Event  *model.CertificateUpdateEvent
	Scores []model.DomainScore
}

// NewProcessor creates a processor writing every scored domain to sink.
func NewProcessor(scorer *scoring.Scorer, sink RecordSink, conf ...ProcessorConfig) *Processor {
	p := &Processor{
		scorer:       scorer,
		sink:         sink,
		freeCAMarker: model.DefaultFreeCAMarker,
		now:          time.Now,
	}
	if len(conf) > 0 {
		c := conf[0]
		p.freeCAMarker = c.FreeCAMarker
		p.notifier = c.Notifier
		p.index = c.Index
		p.indexMinScore = c.IndexMinScore
		p.metrics = c.Metrics
		if c.Now != nil {
			p.now = c.Now
		}
	}
	return p
}

func (p *Processor) Name() string { return ProcessorNameCertstream }

// ProcessEnvelope decodes one message line and processes it. Undecodable
// lines are counted and dropped; the result is nil for them.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	event, err := ParseCertstreamMessage(env.Line)
	if err != nil {
		p.metrics.Malformed()
		log.Printf("ingest: dropping %s message (%.80s): %v", env.Source, env.Line, err)
		return nil
	}
	p.metrics.Message(event.MessageType)

	return &ProcessResult{
		Source: env.Source,
		Event:  event,
		Scores: p.Process(event),
	}
}

// Process scores each leaf domain of a certificate update in order.
// Heartbeats and other message types produce no scores and no output.
func (p *Processor) Process(event *model.CertificateUpdateEvent) []model.DomainScore {
	if event == nil || event.IsHeartbeat() {
		return nil
	}
	domains := AllDomains(event)
	if len(domains) == 0 {
		return nil
	}

	freeCA := p.freeCAMarker != "" && strings.Contains(event.IssuerSubject(), p.freeCAMarker)

	scores := make([]model.DomainScore, 0, len(domains))
	for _, domain := range domains {
		scores = append(scores, p.processDomain(event, domain, freeCA))
	}
	return scores
}

func (p *Processor) processDomain(event *model.CertificateUpdateEvent, domain string, freeCA bool) model.DomainScore {
	ds := p.scorer.Score(strings.ToLower(domain))

	// Free CAs are the usual choice for throwaway phishing hosts.
	if freeCA {
		ds.Score += freeCAPoints
		ds.Tags = append(ds.Tags, TagFreeCA)
	}

	bucket := severity.Bucket(ds.Score)

	if a, ok := alert.For(ds.Domain, ds.Score); ok {
		p.metrics.Alert(a.Label)
		if p.notifier != nil {
			p.notifier.Notify(a)
		}
	}

	now := p.now()
	record := &model.DetectionRecord{
		Tags:      append([]string{}, ds.Tags...),
		Domain:    ds.Domain,
		Score:     ds.Score,
		Time:      float64(now.UnixNano()) / float64(time.Second),
		RawEvent:  event.Raw,
		Bucket:    bucket,
		Timestamp: now,
	}

	if p.sink != nil {
		if err := p.sink.Add(record); err != nil {
			p.metrics.WriteError()
			log.Printf("ingest: persist %s (score=%d): %v", ds.Domain, ds.Score, err)
		}
	}
	if p.index != nil && ds.Score >= p.indexMinScore {
		p.index.Add(record)
	}

	p.metrics.DomainScored(bucket)
	return ds
}
