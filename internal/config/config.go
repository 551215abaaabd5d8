// Package config loads and validates sync configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Library   LibraryConfig   `mapstructure:"library"`
	Discogs   DiscogsConfig   `mapstructure:"discogs"`
	Match     MatchConfig     `mapstructure:"match"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Render    RenderConfig    `mapstructure:"render"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Report    ReportConfig    `mapstructure:"report"`
	History   HistoryConfig   `mapstructure:"history"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Events    EventsConfig    `mapstructure:"events"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// LibraryConfig locates the local archive and names the release source.
type LibraryConfig struct {
	Root   string `mapstructure:"root"`
	Source string `mapstructure:"source"` // discogs or local
}

// DiscogsConfig holds credentials and client behavior for the Discogs API.
type DiscogsConfig struct {
	Token          string  `mapstructure:"token"`
	Username       string  `mapstructure:"username"`
	BaseURL        string  `mapstructure:"base_url"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	PageSize       int     `mapstructure:"page_size"`
}

// MatchConfig tunes track-to-video matching.
type MatchConfig struct {
	MinScore         float64 `mapstructure:"min_score"`
	DurationRatioMax float64 `mapstructure:"duration_ratio_max"`
	DurationRatioMin float64 `mapstructure:"duration_ratio_min"`
}

// ToolsConfig names the external binaries the pipeline shells out to.
type ToolsConfig struct {
	Ytdlp   string `mapstructure:"ytdlp"`
	Ffmpeg  string `mapstructure:"ffmpeg"`
	Ffprobe string `mapstructure:"ffprobe"`
}

// WorkersConfig governs pool sizing and the execution substrate.
type WorkersConfig struct {
	Count        int     `mapstructure:"count"` // 0 derives from core count
	MetadataCap  int     `mapstructure:"metadata_cap"`
	CoreFraction float64 `mapstructure:"core_fraction"`
	Substrate    string  `mapstructure:"substrate"` // auto, threads or process
}

// DashboardConfig controls the live terminal display.
type DashboardConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	FPS       int  `mapstructure:"fps"`
	LogLines  int  `mapstructure:"log_lines"`
	Artifacts int  `mapstructure:"artifacts"`
}

// RenderConfig configures the headless fallback for JS-gated watch pages.
type RenderConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	NavTimeoutSec int     `mapstructure:"nav_timeout_seconds"`
	MaxParallel   int     `mapstructure:"max_parallel"`
	DomainQPS     float64 `mapstructure:"domain_qps"`
}

// HTTPConfig configures the static page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// ReportConfig sets where run summaries land. Empty dir means the library
// root.
type ReportConfig struct {
	Dir string `mapstructure:"dir"`
}

// HistoryConfig selects the run-history store.
type HistoryConfig struct {
	Provider string `mapstructure:"provider"` // none, memory or postgres
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
}

// MirrorConfig selects the archive mirror target.
type MirrorConfig struct {
	Provider string `mapstructure:"provider"` // none, local, memory or gcs
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// EventsConfig selects the item-completion event publisher.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"` // none, memory or pubsub
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features and the per-run log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRATESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("library.root", "crates")
	v.SetDefault("library.source", "discogs")
	v.SetDefault("discogs.base_url", "https://api.discogs.com")
	v.SetDefault("discogs.user_agent", "cratesync/0.1 (+https://github.com/crateloft/cratesync)")
	v.SetDefault("discogs.timeout_seconds", 15)
	v.SetDefault("discogs.rate_per_second", 1.0)
	v.SetDefault("discogs.page_size", 100)
	v.SetDefault("match.min_score", 0.0)
	v.SetDefault("match.duration_ratio_max", 2.0)
	v.SetDefault("match.duration_ratio_min", 0.5)
	v.SetDefault("tools.ytdlp", "yt-dlp")
	v.SetDefault("tools.ffmpeg", "ffmpeg")
	v.SetDefault("tools.ffprobe", "ffprobe")
	v.SetDefault("workers.count", 0)
	v.SetDefault("workers.metadata_cap", 3)
	v.SetDefault("workers.core_fraction", 0.6)
	v.SetDefault("workers.substrate", "auto")
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.fps", 10)
	v.SetDefault("dashboard.log_lines", 6)
	v.SetDefault("dashboard.artifacts", 3)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.max_parallel", 1)
	v.SetDefault("render.domain_qps", 0.5)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("history.provider", "none")
	v.SetDefault("history.table", "sync_runs")
	v.SetDefault("mirror.provider", "none")
	v.SetDefault("mirror.prefix", "releases")
	v.SetDefault("events.provider", "none")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Library.Root == "" {
		return fmt.Errorf("library.root must be set")
	}
	if c.Library.Source != "discogs" && c.Library.Source != "local" {
		return fmt.Errorf("library.source must be discogs or local, got %q", c.Library.Source)
	}
	if c.Discogs.PageSize <= 0 || c.Discogs.PageSize > 100 {
		return fmt.Errorf("discogs.page_size must be in 1..100")
	}
	if c.Match.DurationRatioMax <= c.Match.DurationRatioMin {
		return fmt.Errorf("match.duration_ratio_max must exceed match.duration_ratio_min")
	}
	if c.Workers.MetadataCap <= 0 {
		return fmt.Errorf("workers.metadata_cap must be > 0")
	}
	if c.Workers.CoreFraction <= 0 || c.Workers.CoreFraction > 1 {
		return fmt.Errorf("workers.core_fraction must be in (0, 1]")
	}
	switch c.Workers.Substrate {
	case "auto", "threads", "process":
	default:
		return fmt.Errorf("workers.substrate must be auto, threads or process, got %q", c.Workers.Substrate)
	}
	if c.Dashboard.FPS <= 0 {
		return fmt.Errorf("dashboard.fps must be > 0")
	}
	if c.Dashboard.LogLines <= 0 || c.Dashboard.Artifacts <= 0 {
		return fmt.Errorf("dashboard ring capacities must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when render is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// DiscogsTimeout converts the Discogs client timeout into a duration.
func (c Config) DiscogsTimeout() time.Duration {
	return time.Duration(c.Discogs.TimeoutSeconds) * time.Second
}

// RenderInterval converts the dashboard refresh rate into a tick interval.
func (c Config) RenderInterval() time.Duration {
	return time.Second / time.Duration(c.Dashboard.FPS)
}
