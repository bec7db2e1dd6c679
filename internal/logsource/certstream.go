package logsource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinytelemetry/phishcatch/internal/metrics"
	"github.com/tinytelemetry/phishcatch/internal/model"
)

const (
	// DefaultCertstreamBuffer is the default channel buffer size for certstream messages.
	DefaultCertstreamBuffer = 50_000

	// DefaultCertstreamMaxMessageSize bounds a single websocket frame.
	DefaultCertstreamMaxMessageSize = 1024 * 1024 // 1MB

	DefaultPingInterval      = 15 * time.Second
	DefaultReconnectDelay    = 1 * time.Second
	DefaultMaxReconnectDelay = 60 * time.Second

	writeWait = 5 * time.Second
)

// ErrMaxRetries is reported by Err when consecutive dial failures exceed
// the configured limit.
var ErrMaxRetries = errors.New("certstream: max reconnect attempts exceeded")

// CertstreamConfig holds tunable parameters for the certstream source.
// A negative PingInterval disables pings and read deadlines. MaxRetries
// bounds consecutive failed dials; zero retries forever.
type CertstreamConfig struct {
	URL               string
	PingInterval      time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	MaxRetries        int
	BufferSize        int
	MaxMessageSize    int64
	Dialer            *websocket.Dialer
	Metrics           *metrics.Pipeline
}

// CertstreamSource streams certstream messages from a websocket endpoint,
// reconnecting with exponential backoff when the connection drops.
type CertstreamSource struct {
	url               string
	pingInterval      time.Duration
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	maxRetries        int
	maxMessageSize    int64
	dialer            *websocket.Dialer
	metrics           *metrics.Pipeline

	ch     chan model.IngestEnvelope
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

// NewCertstreamSource creates a CertstreamSource and starts dialing in a
// background goroutine. Lines is closed when ctx is cancelled, Stop is
// called, or the retry limit is reached.
func NewCertstreamSource(ctx context.Context, conf ...CertstreamConfig) *CertstreamSource {
	s := &CertstreamSource{
		url:               model.DefaultCertstreamURL,
		pingInterval:      DefaultPingInterval,
		reconnectDelay:    DefaultReconnectDelay,
		maxReconnectDelay: DefaultMaxReconnectDelay,
		maxMessageSize:    DefaultCertstreamMaxMessageSize,
		dialer:            websocket.DefaultDialer,
	}
	bufferSize := DefaultCertstreamBuffer
	if len(conf) > 0 {
		c := conf[0]
		if c.URL != "" {
			s.url = c.URL
		}
		if c.PingInterval != 0 {
			s.pingInterval = c.PingInterval
		}
		if c.ReconnectDelay > 0 {
			s.reconnectDelay = c.ReconnectDelay
		}
		if c.MaxReconnectDelay > 0 {
			s.maxReconnectDelay = c.MaxReconnectDelay
		}
		if c.MaxRetries > 0 {
			s.maxRetries = c.MaxRetries
		}
		if c.BufferSize > 0 {
			bufferSize = c.BufferSize
		}
		if c.MaxMessageSize > 0 {
			s.maxMessageSize = c.MaxMessageSize
		}
		if c.Dialer != nil {
			s.dialer = c.Dialer
		}
		s.metrics = c.Metrics
	}
	if s.maxReconnectDelay < s.reconnectDelay {
		s.maxReconnectDelay = s.reconnectDelay
	}

	ctx, cancel := context.WithCancel(ctx)
	s.ch = make(chan model.IngestEnvelope, bufferSize)
	s.cancel = cancel
	go s.run(ctx)
	return s
}

func (s *CertstreamSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *CertstreamSource) Stop()                              { s.cancel() }
func (s *CertstreamSource) Name() string                       { return "certstream" }

// Err returns the unrecoverable failure that closed Lines, if any.
// It is nil after a graceful stop.
func (s *CertstreamSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *CertstreamSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *CertstreamSource) run(ctx context.Context) {
	defer close(s.ch)

	delay := s.reconnectDelay
	failures := 0
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if s.maxRetries > 0 && failures > s.maxRetries {
				s.setErr(fmt.Errorf("%w (%d): %v", ErrMaxRetries, s.maxRetries, err))
				log.Printf("certstream: giving up on %s after %d failed attempts: %v", s.url, failures, err)
				return
			}
			log.Printf("certstream: dial %s failed (attempt %d), retrying in %s: %v", s.url, failures, delay, err)
		} else {
			failures = 0
			delay = s.reconnectDelay
			log.Printf("certstream: connected to %s", s.url)
			err = s.consume(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			log.Printf("certstream: connection to %s lost, reconnecting in %s: %v", s.url, delay, err)
		}

		s.metrics.Reconnect()
		if !sleepContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay, s.maxReconnectDelay)
	}
}

// consume reads text frames until the connection fails or ctx is done.
func (s *CertstreamSource) consume(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(stop)
		_ = conn.Close()
		wg.Wait()
	}()

	conn.SetReadLimit(s.maxMessageSize)

	// A missed pong (or any frame) within two ping intervals marks the peer dead.
	readTimeout := 2 * s.pingInterval
	extend := func() error {
		if s.pingInterval <= 0 {
			return nil
		}
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	conn.SetPongHandler(func(string) error { return extend() })

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepalive(ctx, conn, stop)
	}()

	for {
		// The deadline covers the read only; a slow consumer upstream of
		// s.ch must not time out a live connection.
		if err := extend(); err != nil {
			return err
		}
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		select {
		case s.ch <- model.IngestEnvelope{Source: s.Name(), Line: string(data)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// keepalive sends pings and closes the connection when ctx is cancelled so
// the blocked reader returns.
func (s *CertstreamSource) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	var tick <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		case <-tick:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Printf("certstream: ping failed: %v", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
