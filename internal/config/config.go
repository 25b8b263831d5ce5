// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Source   SourceConfig   `mapstructure:"source"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Render   RenderConfig   `mapstructure:"render"`
	Discover DiscoverConfig `mapstructure:"discover"`
	Match    MatchConfig    `mapstructure:"match"`
	Store    StoreConfig    `mapstructure:"store"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Ops      OpsConfig      `mapstructure:"ops"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourceConfig identifies the web origin and the enumeration tokens used by
// parametrized discovery.
type SourceConfig struct {
	BaseURL    string   `mapstructure:"base_url"`
	Localities []string `mapstructure:"localities"`
	Categories []string `mapstructure:"categories"`
}

// FetchConfig governs the polite HTTP client.
type FetchConfig struct {
	UserAgents   []string      `mapstructure:"user_agents"`
	RotateEvery  int           `mapstructure:"rotate_every"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	DelayMin     time.Duration `mapstructure:"delay_min"`
	DelayMax     time.Duration `mapstructure:"delay_max"`
	PerHostQPS   float64       `mapstructure:"per_host_qps"`
	MaxForbidden int           `mapstructure:"max_forbidden"`
}

// RenderConfig configures the rendered-DOM fallback path.
type RenderConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxParallel     int           `mapstructure:"max_parallel"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	MinHTMLBytes    int           `mapstructure:"min_html_bytes"`
	MarkerSelectors []string      `mapstructure:"marker_selectors"`
	Keywords        []string      `mapstructure:"keywords"`
}

// DiscoverConfig selects discovery strategies and bounds pagination walks.
type DiscoverConfig struct {
	Strategies []string `mapstructure:"strategies"`
	MaxPages   int      `mapstructure:"max_pages"`
}

// MatchConfig holds the empirical fuzzy-matcher tuning; the threshold and
// bonus weights are configuration, not fixed law.
type MatchConfig struct {
	Threshold      float64 `mapstructure:"threshold"`
	LocalityBonus  float64 `mapstructure:"locality_bonus"`
	SubstringBonus float64 `mapstructure:"substring_bonus"`
}

// StoreConfig controls access to the relational store and batch flushing.
type StoreConfig struct {
	DSN        string `mapstructure:"dsn"`
	MaxConns   int32  `mapstructure:"max_conns"`
	FlushEvery int    `mapstructure:"flush_every"`
	ExportDir  string `mapstructure:"export_dir"`
}

// PipelineConfig bounds the worker pool.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// OpsConfig configures the health/metrics HTTP surface.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("logging.development", true)

	v.SetDefault("fetch.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2.1 Safari/605.1.15",
	})
	v.SetDefault("fetch.rotate_every", 10)
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_retries", 4)
	v.SetDefault("fetch.backoff_base", "500ms")
	v.SetDefault("fetch.backoff_max", "30s")
	v.SetDefault("fetch.delay_min", "200ms")
	v.SetDefault("fetch.delay_max", "2s")
	v.SetDefault("fetch.per_host_qps", 2.0)
	v.SetDefault("fetch.max_forbidden", 3)

	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_parallel", 2)
	v.SetDefault("render.nav_timeout", "25s")
	v.SetDefault("render.min_html_bytes", 2000)
	v.SetDefault("render.marker_selectors", []string{"h1"})
	v.SetDefault("render.keywords", []string{
		"__NEXT_DATA__",
		"data-reactroot",
		"ng-app",
		"window.__APOLLO_STATE__",
	})

	v.SetDefault("discover.strategies", []string{"pagination", "sitemap", "enumeration"})
	v.SetDefault("discover.max_pages", 50)

	v.SetDefault("match.threshold", 0.6)
	v.SetDefault("match.locality_bonus", 0.2)
	v.SetDefault("match.substring_bonus", 0.3)

	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.flush_every", 25)

	v.SetDefault("pipeline.concurrency", 8)

	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if len(c.Fetch.UserAgents) == 0 {
		return fmt.Errorf("fetch.user_agents must include at least one identity")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("fetch.max_retries must be >= 1")
	}
	if c.Fetch.DelayMin < 0 || c.Fetch.DelayMax < c.Fetch.DelayMin {
		return fmt.Errorf("fetch.delay_min/delay_max must satisfy 0 <= min <= max")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when rendering is enabled")
	}
	if len(c.Discover.Strategies) == 0 {
		return fmt.Errorf("discover.strategies must include at least one strategy")
	}
	for _, s := range c.Discover.Strategies {
		switch s {
		case "pagination", "sitemap", "enumeration":
		default:
			return fmt.Errorf("discover.strategies contains unknown strategy %q", s)
		}
	}
	if c.Discover.MaxPages <= 0 {
		return fmt.Errorf("discover.max_pages must be > 0")
	}
	if c.Match.Threshold <= 0 {
		return fmt.Errorf("match.threshold must be > 0")
	}
	if c.Store.FlushEvery <= 0 {
		return fmt.Errorf("store.flush_every must be > 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	return nil
}
