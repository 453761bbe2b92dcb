package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
)

// Default configuration values
const (
	DefaultFeeAPIURL              = "https://mempool.space/api/v1/fees/recommended"
	DefaultRequestTimeout         = 10 * time.Second
	DefaultChainPollInterval      = 10 * time.Second
	DefaultBlockStatsPollInterval = 10 * time.Second
	DefaultFeePollInterval        = 5 * time.Second
	DefaultBroadcastCapacity      = 5
	DefaultShutdownGrace          = 15 * time.Second
	DefaultRateLimitRPS           = 10.0
	DefaultRateLimitBurst         = 5
	DefaultBreakerFailures        = 5
	DefaultBreakerTimeout         = 30 * time.Second
	DefaultLogLevel               = "info"
	DefaultTimeFormatLogs         = "kitchen"
	DefaultMetricsPort            = 9090
	DefaultMetricsPath            = "/metrics"
	DefaultAPIPort                = 8080
	DefaultAPIHost                = "0.0.0.0"
	DefaultAPIRateLimit           = 100
	DefaultConfigFileName         = "config.toml"
	MinPollInterval               = 100 * time.Millisecond
)

// ErrMissingRPCURL is returned by Validate when no node endpoint is configured.
var ErrMissingRPCURL = errors.New("rpc url not set (use --rpc-url, BTCWATCHER_RPC_URL or BITCOIN_RPC_URL)")

// Config holds all configuration for btcwatcher
type Config struct {
	// Core settings
	Home string `mapstructure:"home"`

	// Data source
	RPCURL         string        `mapstructure:"rpc_url"`
	RPCUser        string        `mapstructure:"rpc_user"`
	RPCPassword    string        `mapstructure:"rpc_password"`
	FeeAPIURL      string        `mapstructure:"fee_api_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Polling
	ChainPollInterval      time.Duration `mapstructure:"chain_poll_interval"`
	BlockStatsPollInterval time.Duration `mapstructure:"block_stats_poll_interval"`
	FeePollInterval        time.Duration `mapstructure:"fee_poll_interval"`
	BroadcastCapacity      int           `mapstructure:"broadcast_capacity"`
	ShutdownGrace          time.Duration `mapstructure:"shutdown_grace"`

	// Request guard
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	BreakerEnabled  bool          `mapstructure:"breaker_enabled"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`

	// Logging
	LogLevel       string `mapstructure:"log_level"`
	DisableLogs    bool   `mapstructure:"disable_logs"`
	ColorLogs      bool   `mapstructure:"color_logs"`
	TimeFormatLogs string `mapstructure:"time_format_logs"`
	Debug          bool   `mapstructure:"debug"`

	// Metrics settings
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPort    int    `mapstructure:"metrics_port"`
	MetricsPath    string `mapstructure:"metrics_path"`

	// API Server settings
	APIEnabled     bool     `mapstructure:"api_enabled"`
	APIPort        int      `mapstructure:"api_port"`
	APIHost        string   `mapstructure:"api_host"`
	APIKey         string   `mapstructure:"api_key"`
	APIJWTSecret   string   `mapstructure:"api_jwt_secret"`
	APICORSOrigins []string `mapstructure:"api_cors_origins"`
	APIRateLimit   int      `mapstructure:"api_rate_limit"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		Home:           getDefaultHome(),
		FeeAPIURL:      DefaultFeeAPIURL,
		RequestTimeout: DefaultRequestTimeout,

		ChainPollInterval:      DefaultChainPollInterval,
		BlockStatsPollInterval: DefaultBlockStatsPollInterval,
		FeePollInterval:        DefaultFeePollInterval,
		BroadcastCapacity:      DefaultBroadcastCapacity,
		ShutdownGrace:          DefaultShutdownGrace,

		RateLimitRPS:    DefaultRateLimitRPS,
		RateLimitBurst:  DefaultRateLimitBurst,
		BreakerEnabled:  true,
		BreakerFailures: DefaultBreakerFailures,
		BreakerTimeout:  DefaultBreakerTimeout,

		LogLevel:       DefaultLogLevel,
		ColorLogs:      true,
		TimeFormatLogs: DefaultTimeFormatLogs,

		// Metrics defaults
		MetricsEnabled: true,
		MetricsPort:    DefaultMetricsPort,
		MetricsPath:    DefaultMetricsPath,

		// API Server defaults
		APIPort:        DefaultAPIPort,
		APIHost:        DefaultAPIHost,
		APICORSOrigins: []string{"*"},
		APIRateLimit:   DefaultAPIRateLimit,
	}
}

// ConfigFile returns the default config file location under Home.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.Home, DefaultConfigFileName)
}

// getDefaultHome returns the default home directory
func getDefaultHome() string {
	if home := os.Getenv("BTCWATCHER_HOME"); home != "" {
		return home
	}
	return filepath.Join(os.Getenv("HOME"), ".btcwatcher")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return ErrMissingRPCURL
	}
	if _, err := url.Parse(c.RPCURL); err != nil {
		return fmt.Errorf("invalid rpc url: %w", err)
	}
	if c.FeeAPIURL == "" {
		return fmt.Errorf("fee api url not set")
	}
	if _, err := url.Parse(c.FeeAPIURL); err != nil {
		return fmt.Errorf("invalid fee api url: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"chain poll interval", c.ChainPollInterval},
		{"block stats poll interval", c.BlockStatsPollInterval},
		{"fee poll interval", c.FeePollInterval},
	}
	for _, iv := range intervals {
		if iv.value < MinPollInterval {
			return fmt.Errorf("%s too short (minimum %v)", iv.name, MinPollInterval)
		}
	}

	if c.BroadcastCapacity < 1 {
		return fmt.Errorf("broadcast capacity must be at least 1")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}
	if c.BreakerEnabled && c.BreakerFailures == 0 {
		return fmt.Errorf("breaker failures must be at least 1")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.MetricsEnabled && !validPort(c.MetricsPort) {
		return fmt.Errorf("invalid metrics port %d", c.MetricsPort)
	}
	if c.APIEnabled && !validPort(c.APIPort) {
		return fmt.Errorf("invalid api port %d", c.APIPort)
	}
	if c.APIRateLimit < 0 {
		return fmt.Errorf("api rate limit must not be negative")
	}
	return nil
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
