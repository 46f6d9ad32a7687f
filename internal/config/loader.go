// Package config loads orchestrator settings from defaults, an optional YAML
// file and ORCHESTRATOR_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: sqlite.path is read from
// ORCHESTRATOR_SQLITE_PATH.
const EnvPrefix = "ORCHESTRATOR"

const (
	ProviderLoopback = "loopback"
	ProviderLiveKit  = "livekit"
)

// Config captures every setting of the orchestrator process.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	LiveKit   LiveKitConfig   `mapstructure:"livekit"`
	Loopback  LoopbackConfig  `mapstructure:"loopback"`
	Breakout  BreakoutConfig  `mapstructure:"breakout"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type ProviderConfig struct {
	Kind            string        `mapstructure:"kind"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	BulkConcurrency int           `mapstructure:"bulk_concurrency"`
}

type LiveKitConfig struct {
	URL           string        `mapstructure:"url"`
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	RecordingPath string        `mapstructure:"recording_path"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

type LoopbackConfig struct {
	SigningKey      string        `mapstructure:"signing_key"`
	PlaybackBaseURL string        `mapstructure:"playback_base_url"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
}

type BreakoutConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
	EmptyTimeout    time.Duration `mapstructure:"empty_timeout"`
	WarningLead     time.Duration `mapstructure:"warning_lead"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig tunes IntervalClock helpers.
type SchedulerConfig struct {
	ZoneCacheSize int `mapstructure:"zone_cache_size"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTP:      HTTPConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		SQLite:    SQLiteConfig{Path: "orchestrator.db", BusyTimeout: 5 * time.Second},
		Provider:  ProviderConfig{Kind: ProviderLoopback, CallTimeout: 10 * time.Second, BulkConcurrency: 8},
		LiveKit:   LiveKitConfig{TokenTTL: 6 * time.Hour},
		Loopback:  LoopbackConfig{TokenTTL: 6 * time.Hour},
		Breakout:  BreakoutConfig{DefaultDuration: 15 * time.Minute, EmptyTimeout: 5 * time.Minute, WarningLead: time.Minute},
		Log:       LogConfig{Level: "info", Format: "json"},
		Scheduler: SchedulerConfig{ZoneCacheSize: 64},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("sqlite.path", d.SQLite.Path)
	v.SetDefault("sqlite.busy_timeout", d.SQLite.BusyTimeout)
	v.SetDefault("provider.kind", d.Provider.Kind)
	v.SetDefault("provider.call_timeout", d.Provider.CallTimeout)
	v.SetDefault("provider.bulk_concurrency", d.Provider.BulkConcurrency)
	v.SetDefault("livekit.url", "")
	v.SetDefault("livekit.api_key", "")
	v.SetDefault("livekit.api_secret", "")
	v.SetDefault("livekit.recording_path", "")
	v.SetDefault("livekit.token_ttl", d.LiveKit.TokenTTL)
	v.SetDefault("loopback.signing_key", "")
	v.SetDefault("loopback.playback_base_url", "")
	v.SetDefault("loopback.token_ttl", d.Loopback.TokenTTL)
	v.SetDefault("breakout.default_duration", d.Breakout.DefaultDuration)
	v.SetDefault("breakout.empty_timeout", d.Breakout.EmptyTimeout)
	v.SetDefault("breakout.warning_lead", d.Breakout.WarningLead)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("scheduler.zone_cache_size", d.Scheduler.ZoneCacheSize)
}

// Load reads configuration. path names an optional YAML file; an empty path
// uses defaults and the environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Provider.Kind = strings.ToLower(strings.TrimSpace(cfg.Provider.Kind))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing and invalid key together.
func (c Config) Validate() error {
	missing := make([]string, 0, 3)
	invalid := make([]string, 0, 4)

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, "http.port")
	}
	if strings.TrimSpace(c.SQLite.Path) == "" {
		missing = append(missing, "sqlite.path")
	}
	if c.SQLite.BusyTimeout < 0 {
		invalid = append(invalid, "sqlite.busy_timeout")
	}
	if c.Provider.CallTimeout <= 0 {
		invalid = append(invalid, "provider.call_timeout")
	}
	if c.Provider.BulkConcurrency <= 0 {
		invalid = append(invalid, "provider.bulk_concurrency")
	}
	if c.Breakout.DefaultDuration <= 0 {
		invalid = append(invalid, "breakout.default_duration")
	}
	if c.Breakout.EmptyTimeout < 0 {
		invalid = append(invalid, "breakout.empty_timeout")
	}
	if c.Breakout.WarningLead <= 0 {
		invalid = append(invalid, "breakout.warning_lead")
	}

	switch strings.ToLower(strings.TrimSpace(c.Provider.Kind)) {
	case ProviderLiveKit:
		if strings.TrimSpace(c.LiveKit.URL) == "" {
			missing = append(missing, "livekit.url")
		}
		if strings.TrimSpace(c.LiveKit.APIKey) == "" {
			missing = append(missing, "livekit.api_key")
		}
		if strings.TrimSpace(c.LiveKit.APISecret) == "" {
			missing = append(missing, "livekit.api_secret")
		}
	case ProviderLoopback:
		if key := strings.TrimSpace(c.Loopback.SigningKey); key == "" {
			missing = append(missing, "loopback.signing_key")
		} else if len(key) < 16 || len(key) > 64 {
			invalid = append(invalid, "loopback.signing_key")
		}
	default:
		invalid = append(invalid, "provider.kind")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		invalid = append(invalid, "log.format")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid settings: %s", strings.Join(invalid, ", ")))
	}
	return errors.Join(errs...)
}
