package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// GetVersionInfo returns the current version and commit information.
func GetVersionInfo() (string, string) {
	return version, commit
}

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/phishcatch/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Phishcatch - Certificate Transparency Phishing Catcher\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultDBPath := filepath.Join(home, ".local", "share", "phishcatch", "phishcatch.duckdb")

	v := viper.New()
	v.SetEnvPrefix("PHISHCATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("certstream-enabled", true)
	v.SetDefault("certstream-url", defaultCertstreamURL)
	v.SetDefault("certstream-ping-interval", defaultPingInterval)
	v.SetDefault("certstream-reconnect-delay", defaultReconnectDelay)
	v.SetDefault("certstream-max-reconnect-delay", defaultMaxReconnectDelay)
	v.SetDefault("certstream-max-retries", defaultCertstreamMaxRetries)
	v.SetDefault("host", defaultBindHost)
	v.SetDefault("tcp-enabled", false)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("output-dir", defaultOutputDir)
	v.SetDefault("suspicious-file", "")
	v.SetDefault("suspicious-override", false)
	v.SetDefault("free-ca-marker", defaultFreeCAMarker)
	v.SetDefault("alerts-enabled", true)
	v.SetDefault("index-enabled", true)
	v.SetDefault("index-min-score", defaultIndexMinScore)
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("index-retention", defaultIndexRetention)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "phishcatch", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.OutputDir = expandHome(home, cfg.OutputDir)
	cfg.SuspiciousFile = expandHome(home, cfg.SuspiciousFile)

	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func validateConfig(cfg appConfig) error {
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.CertstreamEnabled {
		u, err := url.Parse(cfg.CertstreamURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("invalid certstream-url: %q (want ws:// or wss://)", cfg.CertstreamURL)
		}
	}
	if cfg.PingInterval < 0 {
		return fmt.Errorf("invalid certstream-ping-interval: %s", cfg.PingInterval)
	}
	if cfg.ReconnectDelay <= 0 {
		return fmt.Errorf("invalid certstream-reconnect-delay: %s", cfg.ReconnectDelay)
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		return fmt.Errorf("invalid certstream-max-reconnect-delay: %s is below certstream-reconnect-delay %s",
			cfg.MaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.CertstreamMaxRetries < 0 {
		return fmt.Errorf("invalid certstream-max-retries: %d", cfg.CertstreamMaxRetries)
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return errors.New("output-dir must not be empty")
	}
	if cfg.SuspiciousOverride && cfg.SuspiciousFile == "" {
		return errors.New("suspicious-override requires suspicious-file")
	}
	if cfg.IndexMinScore < 0 {
		return fmt.Errorf("invalid index-min-score: %d", cfg.IndexMinScore)
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("invalid query-timeout: %s", cfg.QueryTimeout)
	}
	if cfg.IndexRetention < 0 {
		return fmt.Errorf("invalid index-retention: %s", cfg.IndexRetention)
	}
	return nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
