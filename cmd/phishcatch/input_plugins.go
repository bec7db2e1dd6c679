package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tinytelemetry/phishcatch/internal/logsource"
	"github.com/tinytelemetry/phishcatch/internal/metrics"
	"github.com/tinytelemetry/phishcatch/internal/tcpserver"
)

// NamedLogSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLogSource = logsource.LogSource

// failingSource is implemented by sources that can end with an unrecoverable error.
type failingSource interface {
	Err() error
}

// InputSourcePlugin is a small plugin primitive for wiring message inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	CertstreamEnabled    bool
	CertstreamURL        string
	PingInterval         time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	CertstreamMaxRetries int
	TCPEnabled           bool
	TCPAddr              string
	Metrics              *metrics.Pipeline
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	plugins := make([]InputSourcePlugin, 0, 3)
	plugins = append(plugins, certstreamInputPlugin{
		enabled: cfg.CertstreamEnabled,
		conf: logsource.CertstreamConfig{
			URL:               cfg.CertstreamURL,
			PingInterval:      cfg.PingInterval,
			ReconnectDelay:    cfg.ReconnectDelay,
			MaxReconnectDelay: cfg.MaxReconnectDelay,
			MaxRetries:        cfg.CertstreamMaxRetries,
			Metrics:           cfg.Metrics,
		},
	})
	plugins = append(plugins, tcpInputPlugin{
		addr:    cfg.TCPAddr,
		enabled: cfg.TCPEnabled,
		metrics: cfg.Metrics,
	})
	plugins = append(plugins, stdinInputPlugin{metrics: cfg.Metrics})
	return plugins
}

type certstreamInputPlugin struct {
	enabled bool
	conf    logsource.CertstreamConfig
}

func (p certstreamInputPlugin) Name() string { return "certstream" }

func (p certstreamInputPlugin) Enabled() bool { return p.enabled }

func (p certstreamInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	conf := p.conf
	// Zero means "use the logsource default"; a configured 0s disables pings.
	if conf.PingInterval == 0 {
		conf.PingInterval = -1
	}
	return logsource.NewCertstreamSource(ctx, conf), nil
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
	metrics *metrics.Pipeline
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedLogSource, error) {
	server := tcpserver.NewServer(p.addr, tcpserver.ServerConfig{Metrics: p.metrics})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return logsource.NewTCPSource(server), nil
}

type stdinInputPlugin struct {
	metrics *metrics.Pipeline
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	return logsource.NewStdinSource(ctx, logsource.StdinConfig{Metrics: p.metrics}), nil
}
