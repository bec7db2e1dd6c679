package main

import (
	"time"

	"github.com/tinytelemetry/phishcatch/internal/duckdb"
	"github.com/tinytelemetry/phishcatch/internal/logsource"
	"github.com/tinytelemetry/phishcatch/internal/model"
)

const (
	defaultBindHost             = "127.0.0.1"
	defaultCertstreamURL        = model.DefaultCertstreamURL
	defaultPingInterval         = logsource.DefaultPingInterval
	defaultReconnectDelay       = logsource.DefaultReconnectDelay
	defaultMaxReconnectDelay    = logsource.DefaultMaxReconnectDelay
	defaultCertstreamMaxRetries = 0 // 0 = retry forever
	defaultTCPPort              = 4100
	defaultMuxBufferSize        = DefaultMuxBuffer
	defaultOutputDir            = model.DefaultOutputDir
	defaultFreeCAMarker         = model.DefaultFreeCAMarker
	defaultIndexMinScore        = model.DefaultAlertScore
	defaultAPIPort              = 3000
	defaultQueryTimeout         = 30 * time.Second
	defaultInsertBatchSize      = duckdb.DefaultBatchSize
	defaultInsertFlushInterval  = duckdb.DefaultFlushInterval
	defaultInsertFlushQueue     = duckdb.DefaultFlushQueueSize
	defaultIndexRetention       = duckdb.DefaultRetention // a configured 0 disables cleanup
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	CertstreamEnabled    bool          `mapstructure:"certstream-enabled"`
	CertstreamURL        string        `mapstructure:"certstream-url"`
	PingInterval         time.Duration `mapstructure:"certstream-ping-interval"`
	ReconnectDelay       time.Duration `mapstructure:"certstream-reconnect-delay"`
	MaxReconnectDelay    time.Duration `mapstructure:"certstream-max-reconnect-delay"`
	CertstreamMaxRetries int           `mapstructure:"certstream-max-retries"`
	Host                 string        `mapstructure:"host"`
	TCPEnabled           bool          `mapstructure:"tcp-enabled"`
	TCPPort              int           `mapstructure:"tcp-port"`
	TCPAddr              string        `mapstructure:"tcp-addr"`
	MuxBufferSize        int           `mapstructure:"mux-buffer-size"`
	OutputDir            string        `mapstructure:"output-dir"`
	SuspiciousFile       string        `mapstructure:"suspicious-file"`
	SuspiciousOverride   bool          `mapstructure:"suspicious-override"`
	FreeCAMarker         string        `mapstructure:"free-ca-marker"`
	AlertsEnabled        bool          `mapstructure:"alerts-enabled"`
	IndexEnabled         bool          `mapstructure:"index-enabled"`
	IndexMinScore        int           `mapstructure:"index-min-score"`
	DBPath               string        `mapstructure:"db-path"`
	QueryTimeout         time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize      int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval  time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue     int           `mapstructure:"insert-flush-queue-size"`
	IndexRetention       time.Duration `mapstructure:"index-retention"`
	APIEnabled           bool          `mapstructure:"api-enabled"`
	APIPort              int           `mapstructure:"api-port"`
	APIAddr              string        `mapstructure:"api-addr"`
	ConfigPath           string        `mapstructure:"-"` // not from config file
}
