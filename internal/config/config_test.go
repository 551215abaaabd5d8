package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
library:
  root: /srv/crates
  source: discogs
discogs:
  token: secret
  username: collector
  timeout_seconds: 30
  page_size: 50
match:
  min_score: 120
workers:
  count: 5
  metadata_cap: 2
  core_fraction: 0.5
  substrate: threads
dashboard:
  enabled: false
  fps: 4
render:
  enabled: true
  max_parallel: 2
http:
  timeout_seconds: 45
history:
  provider: memory
mirror:
  provider: local
  dir: /srv/mirror
events:
  provider: memory
server:
  enabled: true
  port: 9090
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Library.Root != "/srv/crates" {
		t.Fatalf("expected root override, got %q", cfg.Library.Root)
	}
	if cfg.Discogs.Token != "secret" || cfg.Discogs.PageSize != 50 {
		t.Fatalf("expected discogs overrides to apply: %+v", cfg.Discogs)
	}
	if cfg.Workers.Count != 5 || cfg.Workers.Substrate != "threads" {
		t.Fatalf("expected worker overrides to apply: %+v", cfg.Workers)
	}
	if cfg.Dashboard.Enabled || cfg.Dashboard.FPS != 4 {
		t.Fatalf("expected dashboard overrides to apply: %+v", cfg.Dashboard)
	}
	if cfg.History.Provider != "memory" || cfg.Mirror.Provider != "local" {
		t.Fatalf("expected provider overrides to apply")
	}
	if cfg.Logging.Development {
		t.Fatal("expected logging.development=false")
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
	if got := cfg.RenderInterval(); got != 250*time.Millisecond {
		t.Fatalf("expected render interval 250ms, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Library.Root != "crates" || cfg.Library.Source != "discogs" {
		t.Fatalf("unexpected library defaults: %+v", cfg.Library)
	}
	if cfg.Workers.MetadataCap != 3 || cfg.Workers.CoreFraction != 0.6 {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Workers)
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.FPS != 10 || cfg.Dashboard.LogLines != 6 || cfg.Dashboard.Artifacts != 3 {
		t.Fatalf("unexpected dashboard defaults: %+v", cfg.Dashboard)
	}
	if cfg.Match.DurationRatioMax != 2.0 || cfg.Match.DurationRatioMin != 0.5 {
		t.Fatalf("unexpected match defaults: %+v", cfg.Match)
	}
	if cfg.Tools.Ytdlp != "yt-dlp" || cfg.Tools.Ffprobe != "ffprobe" {
		t.Fatalf("unexpected tool defaults: %+v", cfg.Tools)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Library:   LibraryConfig{Root: "crates", Source: "discogs"},
		Discogs:   DiscogsConfig{PageSize: 100},
		Match:     MatchConfig{DurationRatioMax: 2.0, DurationRatioMin: 0.5},
		Workers:   WorkersConfig{MetadataCap: 3, CoreFraction: 0.6, Substrate: "auto"},
		Dashboard: DashboardConfig{FPS: 10, LogLines: 6, Artifacts: 3},
		HTTP:      HTTPConfig{TimeoutSeconds: 15},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing root",
			cfg: func() Config {
				c := base
				c.Library.Root = ""
				return c
			}(),
			want: "library.root",
		},
		{
			name: "bad source",
			cfg: func() Config {
				c := base
				c.Library.Source = "spotify"
				return c
			}(),
			want: "library.source",
		},
		{
			name: "bad page size",
			cfg: func() Config {
				c := base
				c.Discogs.PageSize = 500
				return c
			}(),
			want: "discogs.page_size",
		},
		{
			name: "inverted duration ratios",
			cfg: func() Config {
				c := base
				c.Match.DurationRatioMax = 0.4
				return c
			}(),
			want: "duration_ratio_max",
		},
		{
			name: "bad substrate",
			cfg: func() Config {
				c := base
				c.Workers.Substrate = "fork"
				return c
			}(),
			want: "workers.substrate",
		},
		{
			name: "zero fps",
			cfg: func() Config {
				c := base
				c.Dashboard.FPS = 0
				return c
			}(),
			want: "dashboard.fps",
		},
		{
			name: "render missing max parallel",
			cfg: func() Config {
				c := base
				c.Render.Enabled = true
				c.Render.MaxParallel = 0
				return c
			}(),
			want: "render.max_parallel",
		},
		{
			name: "server missing port",
			cfg: func() Config {
				c := base
				c.Server.Enabled = true
				return c
			}(),
			want: "server.port",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
