package logsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/tinytelemetry/phishcatch/internal/linereader"
	"github.com/tinytelemetry/phishcatch/internal/metrics"
	"github.com/tinytelemetry/phishcatch/internal/model"
)

const (
	// DefaultStdinBuffer is the default channel buffer size for stdin lines.
	DefaultStdinBuffer = 50_000

	// DefaultStdinMaxLineSize is the default maximum size (in bytes) of a single stdin line.
	DefaultStdinMaxLineSize = linereader.DefaultMaxLineSize
)

// StdinConfig holds tunable parameters for the stdin source.
// Oversized lines are skipped and counted as malformed on Metrics.
type StdinConfig struct {
	BufferSize  int
	MaxLineSize int
	Metrics     *metrics.Pipeline
}

// StdinSource replays captured certstream messages, one JSON object per line.
// Lines closes at end of input; Err reports a read failure other than EOF.
type StdinSource struct {
	ch      chan model.IngestEnvelope
	cancel  context.CancelFunc
	metrics *metrics.Pipeline

	mu  sync.Mutex
	err error
}

// NewStdinSource creates a StdinSource that reads from stdin in a background goroutine.
func NewStdinSource(ctx context.Context, conf ...StdinConfig) *StdinSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...StdinConfig) *StdinSource {
	bufferSize := DefaultStdinBuffer
	maxLineSize := DefaultStdinMaxLineSize
	var m *metrics.Pipeline
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		m = conf[0].Metrics
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StdinSource{
		ch:      make(chan model.IngestEnvelope, bufferSize),
		cancel:  cancel,
		metrics: m,
	}
	lines := linereader.New(r, maxLineSize, func(size int) {
		s.metrics.Malformed()
		log.Printf("logsource: stdin skipped %d-byte line (max %d)", size, maxLineSize)
	})
	go s.read(ctx, lines)
	return s
}

// read forwards lines until EOF, a read error or ctx is done. The blocking
// reader runs in its own goroutine so cancellation closes Lines promptly.
func (s *StdinSource) read(ctx context.Context, lines *linereader.Reader) {
	defer close(s.ch)

	results := make(chan string)
	go func() {
		defer close(results)
		for {
			line, err := lines.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.setErr(fmt.Errorf("logsource: stdin read: %w", err))
					log.Printf("logsource: stdin read error: %v", err)
				}
				return
			}
			select {
			case results <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-results:
			if !ok {
				return
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.Name(), Line: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *StdinSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *StdinSource) Stop()                              { s.cancel() }
func (s *StdinSource) Name() string                       { return "stdin" }

// Err returns the read failure that ended the replay early, if any.
func (s *StdinSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StdinSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
