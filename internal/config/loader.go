package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// BTCWATCHER_FEE_POLL_INTERVAL=3s.
const EnvPrefix = "BTCWATCHER"

// LegacyRPCURLEnv is honoured as a fallback for rpc_url.
const LegacyRPCURLEnv = "BITCOIN_RPC_URL"

// Load builds a Config from, in increasing precedence: defaults, the config
// file at path (skipped when path is empty or the file does not exist),
// environment variables and flags that were explicitly set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	for key, value := range defaults.Settings() {
		v.SetDefault(key, value)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("rpc_url", EnvPrefix+"_RPC_URL", LegacyRPCURLEnv); err != nil {
		return nil, fmt.Errorf("failed to bind rpc url env: %w", err)
	}

	if flags != nil {
		if err := bindFlags(v, flags, defaults.Settings()); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// bindFlags binds every flag whose name maps onto a known setting key.
// Flag names use dashes where keys use underscores.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, known map[string]interface{}) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if _, ok := known[key]; !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Settings returns the configuration as a flat key/value map using the
// file and environment key names. Durations are rendered as strings.
func (c *Config) Settings() map[string]interface{} {
	return map[string]interface{}{
		"home": c.Home,

		"rpc_url":         c.RPCURL,
		"rpc_user":        c.RPCUser,
		"rpc_password":    c.RPCPassword,
		"fee_api_url":     c.FeeAPIURL,
		"request_timeout": c.RequestTimeout.String(),

		"chain_poll_interval":       c.ChainPollInterval.String(),
		"block_stats_poll_interval": c.BlockStatsPollInterval.String(),
		"fee_poll_interval":         c.FeePollInterval.String(),
		"broadcast_capacity":        c.BroadcastCapacity,
		"shutdown_grace":            c.ShutdownGrace.String(),

		"rate_limit_rps":   c.RateLimitRPS,
		"rate_limit_burst": c.RateLimitBurst,
		"breaker_enabled":  c.BreakerEnabled,
		"breaker_failures": c.BreakerFailures,
		"breaker_timeout":  c.BreakerTimeout.String(),

		"log_level":        c.LogLevel,
		"disable_logs":     c.DisableLogs,
		"color_logs":       c.ColorLogs,
		"time_format_logs": c.TimeFormatLogs,
		"debug":            c.Debug,

		"metrics_enabled": c.MetricsEnabled,
		"metrics_port":    c.MetricsPort,
		"metrics_path":    c.MetricsPath,

		"api_enabled":      c.APIEnabled,
		"api_port":         c.APIPort,
		"api_host":         c.APIHost,
		"api_key":          c.APIKey,
		"api_jwt_secret":   c.APIJWTSecret,
		"api_cors_origins": c.APICORSOrigins,
		"api_rate_limit":   c.APIRateLimit,
	}
}
