package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/tinytelemetry/phishcatch/internal/linereader"
	"github.com/tinytelemetry/phishcatch/internal/metrics"
	"github.com/tinytelemetry/phishcatch/internal/model"
)

const (
	// DefaultAddr is the loopback address used when none is configured.
	DefaultAddr = "127.0.0.1:4100"

	// SourceName tags envelopes received over TCP.
	SourceName = "tcp"

	// DefaultLineChannelSize is the default buffer size for the incoming message channel.
	DefaultLineChannelSize = 100_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single message line.
	DefaultMaxLineSize = linereader.DefaultMaxLineSize
)

// ServerConfig holds tunable parameters for the TCP server.
// Oversized lines are skipped, not fatal to the connection, and counted as
// malformed on Metrics.
type ServerConfig struct {
	LineChannelSize int
	MaxLineSize     int
	Metrics         *metrics.Pipeline
}

// Server listens for newline-delimited certstream JSON messages over TCP,
// for replaying captured streams or fanning in a relay.
type Server struct {
	listener    net.Listener
	addr        string
	lineChan    chan model.IngestEnvelope
	maxLineSize int
	metrics     *metrics.Pipeline
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewServer creates a new TCP server. Default addr is DefaultAddr.
func NewServer(addr string, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	lineChannelSize := DefaultLineChannelSize
	maxLineSize := DefaultMaxLineSize
	var m *metrics.Pipeline
	if len(conf) > 0 {
		if conf[0].LineChannelSize > 0 {
			lineChannelSize = conf[0].LineChannelSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		m = conf[0].Metrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:        addr,
		lineChan:    make(chan model.IngestEnvelope, lineChannelSize),
		maxLineSize: maxLineSize,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins accepting TCP connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("tcpserver: listen %s: %w", s.addr, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
					continue
				}
			}
			s.wg.Add(1)
			go s.handleConnection(conn)
		}
	}()

	return nil
}

// handleConnection forwards one client's lines until it disconnects or the
// server stops. Stop closes conn to unblock a pending read.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	remote := conn.RemoteAddr()
	lines := linereader.New(conn, s.maxLineSize, func(size int) {
		s.metrics.Malformed()
		log.Printf("tcpserver: skipped %d-byte line from %s (max %d)", size, remote, s.maxLineSize)
	})
	for {
		line, err := lines.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				log.Printf("tcpserver: read error from %s: %v", remote, err)
			}
			return
		}
		select {
		case s.lineChan <- model.IngestEnvelope{Source: SourceName, Line: line}:
		case <-s.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TCP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	close(s.lineChan)
	return nil
}

// Lines returns the channel of received message lines.
func (s *Server) Lines() <-chan model.IngestEnvelope {
	return s.lineChan
}

// Addr returns the active listen address.
// Before Start, it returns the configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
