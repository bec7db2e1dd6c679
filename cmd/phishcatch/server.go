package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/phishcatch/internal/alert"
	"github.com/tinytelemetry/phishcatch/internal/bucketlog"
	"github.com/tinytelemetry/phishcatch/internal/duckdb"
	"github.com/tinytelemetry/phishcatch/internal/httpserver"
	"github.com/tinytelemetry/phishcatch/internal/ingest"
	"github.com/tinytelemetry/phishcatch/internal/metrics"
	"github.com/tinytelemetry/phishcatch/internal/model"
	"github.com/tinytelemetry/phishcatch/internal/scoring"
	"github.com/tinytelemetry/phishcatch/internal/suspicious"
)

// runServer streams certificate updates, scores every domain and writes the
// bucket logs until interrupted or the certstream feed fails for good.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	runID := uuid.NewString()

	susp, err := loadSuspicious(cfg)
	if err != nil {
		return err
	}
	scorer := scoring.New(susp)

	writer, err := bucketlog.Open(cfg.OutputDir, runID)
	if err != nil {
		return fmt.Errorf("failed to open output dir: %w", err)
	}

	pipeline := metrics.NewPipeline()

	procConf := ingest.ProcessorConfig{
		FreeCAMarker:  cfg.FreeCAMarker,
		IndexMinScore: cfg.IndexMinScore,
		Metrics:       pipeline,
	}
	if cfg.AlertsEnabled {
		procConf.Notifier = alert.NewConsole(os.Stdout)
	}

	// Optional DuckDB detection index behind an async insert buffer.
	var querier httpserver.QueryStore
	if cfg.IndexEnabled {
		store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize DuckDB: %w", err)
		}
		defer store.Close()
		store.RunID = runID
		querier = store

		insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
			BatchSize:      cfg.InsertBatchSize,
			FlushInterval:  cfg.InsertFlushInterval,
			FlushQueueSize: cfg.InsertFlushQueue,
		})
		defer insertBuffer.Stop()
		procConf.Index = insertBuffer

		retention := cfg.IndexRetention
		if retention == 0 {
			retention = -1
		}
		retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{Retention: retention})
		defer retentionCleaner.Stop()
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, querier, httpserver.ServerConfig{
			Metrics: pipeline.Handler(),
			RunID:   runID,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	processor := ingest.NewProcessor(scorer, writer, procConf)

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	plugins := buildInputPlugins(InputPluginConfig{
		CertstreamEnabled:    cfg.CertstreamEnabled,
		CertstreamURL:        cfg.CertstreamURL,
		PingInterval:         cfg.PingInterval,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectDelay:    cfg.MaxReconnectDelay,
		CertstreamMaxRetries: cfg.CertstreamMaxRetries,
		TCPEnabled:           cfg.TCPEnabled,
		TCPAddr:              cfg.TCPAddr,
		Metrics:              pipeline,
	})

	sources := make([]NamedLogSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			log.Printf("Error initializing input plugin %q: %v", plugin.Name(), err)
			continue
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no input sources: enable certstream or tcp, or pipe captured messages on stdin")
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()

	printStartupBanner(cfg, runID, sources, len(susp.Keywords()), len(susp.TLDs()))
	log.Printf("server: run %s writing to %s", writer.RunID(), writer.Dir())

	g, gctx := errgroup.WithContext(ctx)

	// Single consumer keeps delivery order.
	g.Go(func() error {
		defer cancel()
		for env := range mux.Lines() {
			processor.ProcessEnvelope(env)
		}
		if err := mux.Err(); err != nil {
			return fmt.Errorf("unrecoverable stream failure: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	runErr := g.Wait()

	cancel()
	mux.Stop()
	// The signal goroutine (if active) dies with the process.
	signal.Stop(sigCh)

	if runErr != nil {
		log.Printf("server: %v", runErr)
	}
	return runErr
}

func loadSuspicious(cfg appConfig) (*suspicious.Config, error) {
	if cfg.SuspiciousFile == "" {
		susp, err := suspicious.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load built-in suspicious keywords: %w", err)
		}
		return susp, nil
	}
	susp, err := suspicious.LoadFile(cfg.SuspiciousFile, nil, cfg.SuspiciousOverride)
	if err != nil {
		return nil, fmt.Errorf("failed to load suspicious-file: %w", err)
	}
	return susp, nil
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "phishcatch")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "phishcatch.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, runID string, sources []NamedLogSource, keywords, tlds int) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╦ ╦╦╔═╗╦ ╦╔═╗╔═╗╔╦╗╔═╗╦ ╦
    ╠═╝╠═╣║╚═╗╠═╣║  ╠═╣ ║ ║  ╠═╣
    ╩  ╩ ╩╩╚═╝╩ ╩╚═╝╩ ╩ ╩ ╚═╝╩ ╩`)

	ver := dim.Render("v" + version)

	active := make(map[string]bool, len(sources))
	for _, src := range sources {
		active[src.Name()] = true
	}
	status := func(label string, on bool, detail string) string {
		if on {
			return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(detail))
		}
		return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
	}

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Inputs"))
	lines = append(lines, "")
	lines = append(lines, status("Certstream", active["certstream"], cfg.CertstreamURL))
	lines = append(lines, status("TCP Replay", active["tcp"], cfg.TCPAddr))
	lines = append(lines, status("Stdin Replay", active["stdin"], "piped"))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Output"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Bucket Logs", dim.Render(shortenPath(cfg.OutputDir))))
	lines = append(lines, status("Alerts", cfg.AlertsEnabled, fmt.Sprintf("score >= %d", model.DefaultAlertScore)))
	lines = append(lines, status("Index", cfg.IndexEnabled, shortenPath(cfg.DBPath)))
	lines = append(lines, status("HTTP API", cfg.APIEnabled, cfg.APIAddr))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Runtime"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Run ID", dim.Render(runID)))
	lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Keywords", dim.Render(fmt.Sprintf("%d keywords, %d tlds", keywords, tlds))))
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", check, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s", dot, "Config File", dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
