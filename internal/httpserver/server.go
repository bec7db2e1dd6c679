package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/phishcatch/internal/model"
	"github.com/tinytelemetry/phishcatch/internal/severity"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:3000"

const defaultTopTags = 20

// QueryStore is the narrow store contract required by the HTTP API.
type QueryStore interface {
	model.DetectionQuerier
}

// ServerConfig holds optional collaborators for the HTTP API.
type ServerConfig struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	RunID   string
}

// Server provides a read-only HTTP API over the detection index.
type Server struct {
	addr      string
	store     QueryStore
	metrics   http.Handler
	runID     string
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. A nil store disables the
// detection endpoints; health and metrics are still served.
func NewServer(addr string, store QueryStore, conf ...ServerConfig) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		store:     store,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	if len(conf) > 0 {
		s.metrics = conf[0].Metrics
		s.runID = conf[0].RunID
	}
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/detections", s.handleDetections)
	r.GET("/api/stats", s.handleStats)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.addr, err)
	}
	s.addr = listener.Addr().String()
	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the active listen address.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":        "ok",
		"uptime":        time.Since(s.startTime).String(),
		"run_id":        s.runID,
		"index_enabled": s.store != nil,
	}
	if s.store != nil {
		count, err := s.store.TotalDetectionCount()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
			return
		}
		body["detection_count"] = count
	}
	c.JSON(http.StatusOK, body)
}

type detectionResponse struct {
	Domain  string   `json:"domain"`
	Score   int      `json:"score"`
	Bucket  int      `json:"bucket"`
	Label   string   `json:"label,omitempty"`
	Tags    []string `json:"tags"`
	Time    float64  `json:"time"`
	RawData any      `json:"raw_data,omitempty"`
}

func (s *Server) handleDetections(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	q := model.DetectionQuery{
		MinScore: model.DefaultAlertScore,
		Domain:   c.Query("domain"),
		RunID:    c.Query("run"),
	}
	var err error
	if q.MinScore, err = intParam(c, "min_score", q.MinScore); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit, err = intParam(c, "limit", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if since := c.Query("since"); since != "" {
		if q.Since, err = time.Parse(time.RFC3339, since); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
			return
		}
	}

	records, err := s.store.RecentDetections(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query detections"})
		return
	}

	items := make([]detectionResponse, 0, len(records))
	for _, r := range records {
		label, _ := severity.Label(r.Bucket)
		item := detectionResponse{
			Domain: r.Domain,
			Score:  r.Score,
			Bucket: r.Bucket,
			Label:  label,
			Tags:   r.Tags,
			Time:   r.Time,
		}
		if len(r.RawEvent) > 0 {
			item.RawData = r.RawEvent
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"detections": items,
		"count":      len(items),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	total, err := s.store.TotalDetectionCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count detections"})
		return
	}
	counts, err := s.store.BucketCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read bucket counts"})
		return
	}
	tags, err := s.store.TopTags(defaultTopTags)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read tag counts"})
		return
	}

	buckets := make([]gin.H, 0, len(counts))
	for _, bc := range counts {
		label, _ := severity.Label(bc.Bucket)
		buckets = append(buckets, gin.H{"bucket": bc.Bucket, "label": label, "count": bc.Count})
	}
	topTags := make([]gin.H, 0, len(tags))
	for _, tc := range tags {
		topTags = append(topTags, gin.H{"tag": tc.Tag, "count": tc.Count})
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"buckets":  buckets,
		"top_tags": topTags,
	})
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "detection index is disabled"})
		return false
	}
	return true
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}
