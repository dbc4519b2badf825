// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/scholarship-finder/internal/coordinator"
	"github.com/JakeFAU/scholarship-finder/internal/fetcher"
	"github.com/JakeFAU/scholarship-finder/internal/identity"
	"github.com/JakeFAU/scholarship-finder/internal/opportunity"
	"github.com/JakeFAU/scholarship-finder/internal/policy/ratelimit"
	"github.com/JakeFAU/scholarship-finder/internal/policy/retry"
	"github.com/JakeFAU/scholarship-finder/internal/storage/gcs"
	"github.com/JakeFAU/scholarship-finder/internal/storage/local"
	"github.com/JakeFAU/scholarship-finder/internal/storage/postgres"
)

// EnvPrefix prefixes every environment override, e.g. SCHOLAR_STORE_DRIVER.
const EnvPrefix = "SCHOLAR"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Archive drivers.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Store       StoreConfig       `mapstructure:"store"`
	Fetcher     FetcherConfig     `mapstructure:"fetcher"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Refresh     RefreshConfig     `mapstructure:"refresh"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name; empty keeps the mode's default.
	Level string `mapstructure:"level"`
}

// StoreConfig selects the cache backend.
type StoreConfig struct {
	Driver      string         `mapstructure:"driver"`
	SQLitePath  string         `mapstructure:"sqlite_path"`
	Postgres    PostgresConfig `mapstructure:"postgres"`
	SeedOnStart bool           `mapstructure:"seed_on_start"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Schema          string        `mapstructure:"schema"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// FetcherConfig shapes page retrieval.
type FetcherConfig struct {
	MaxBodySize   int  `mapstructure:"max_body_size"`
	Pacing        bool `mapstructure:"pacing"`
	ReadingPauses bool `mapstructure:"reading_pauses"`
	RespectRobots bool `mapstructure:"respect_robots"`
	// RobotsAgent is the agent name matched against robots.txt groups.
	RobotsAgent string `mapstructure:"robots_agent"`
}

// RateLimitConfig mirrors ratelimit.Config.
type RateLimitConfig struct {
	MaxRequests   int           `mapstructure:"max_requests"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	SuspendFor    time.Duration `mapstructure:"suspend_for"`
	HistoryWindow time.Duration `mapstructure:"history_window"`
}

// IdentityConfig overrides the browser identity pools. Empty lists keep the defaults.
type IdentityConfig struct {
	UserAgents    []string `mapstructure:"user_agents"`
	Referers      []string `mapstructure:"referers"`
	PeriodicEvery int      `mapstructure:"periodic_every"`
}

// RetryConfig bounds fetch attempts.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	// NoDelays disables backoff waits, mainly for local runs against test servers.
	NoDelays bool `mapstructure:"no_delays"`
}

// CoordinatorConfig mirrors coordinator.Config.
type CoordinatorConfig struct {
	ForegroundThreshold int           `mapstructure:"foreground_threshold"`
	BackgroundThreshold int           `mapstructure:"background_threshold"`
	MaxForegroundSites  int           `mapstructure:"max_foreground_sites"`
	PerSiteCap          int           `mapstructure:"per_site_cap"`
	ForegroundCap       int           `mapstructure:"foreground_cap"`
	ForegroundMaxAge    time.Duration `mapstructure:"foreground_max_age"`
	SitePauseMin        time.Duration `mapstructure:"site_pause_min"`
	SitePauseMax        time.Duration `mapstructure:"site_pause_max"`
	DefaultGoal         string        `mapstructure:"default_goal"`
}

// RefreshConfig mirrors coordinator.RefreshConfig.
type RefreshConfig struct {
	MaxAge            time.Duration `mapstructure:"max_age"`
	PassTimeout       time.Duration `mapstructure:"pass_timeout"`
	LaunchesPerMinute float64       `mapstructure:"launches_per_minute"`
	LaunchBurst       int           `mapstructure:"launch_burst"`
	Topic             string        `mapstructure:"topic"`
}

// ArchiveConfig selects where raw pages are kept.
type ArchiveConfig struct {
	Driver   string `mapstructure:"driver"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for refresh notifications. An empty project
// keeps events in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ConfigName is the file name, without extension, looked up in SearchPaths
// when no explicit config file is given.
const ConfigName = "scholarship-finder"

// SearchPaths are the directories searched for ConfigName, in order.
var SearchPaths = []string{".", "$HOME/.scholarship-finder", "/etc/scholarship-finder"}

// Load builds a Config from disk/environment. An empty path searches
// SearchPaths and falls back to defaults when nothing is found.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName(ConfigName)
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	coord := coordinator.DefaultConfig()
	refresh := coordinator.DefaultRefreshConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "scholarships.db")
	v.SetDefault("store.postgres.schema", "public")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("store.postgres.min_conns", 0)
	v.SetDefault("store.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("store.seed_on_start", true)
	v.SetDefault("fetcher.max_body_size", 10<<20)
	v.SetDefault("fetcher.pacing", true)
	v.SetDefault("fetcher.reading_pauses", true)
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.robots_agent", "scholarship-finder")
	v.SetDefault("ratelimit.max_requests", ratelimit.DefaultMaxRequests)
	v.SetDefault("ratelimit.cooldown", ratelimit.DefaultCooldown)
	v.SetDefault("ratelimit.suspend_for", 0)
	v.SetDefault("ratelimit.history_window", ratelimit.DefaultHistoryWindow)
	v.SetDefault("identity.periodic_every", identity.DefaultConfig().PeriodicEvery)
	v.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry.no_delays", false)
	v.SetDefault("coordinator.foreground_threshold", coord.ForegroundThreshold)
	v.SetDefault("coordinator.background_threshold", coord.BackgroundThreshold)
	v.SetDefault("coordinator.max_foreground_sites", coord.MaxForegroundSites)
	v.SetDefault("coordinator.per_site_cap", coord.PerSiteCap)
	v.SetDefault("coordinator.foreground_cap", coord.ForegroundCap)
	v.SetDefault("coordinator.foreground_max_age", coord.ForegroundMaxAge)
	v.SetDefault("coordinator.site_pause_min", coord.SitePauseMin)
	v.SetDefault("coordinator.site_pause_max", coord.SitePauseMax)
	v.SetDefault("coordinator.default_goal", string(coord.DefaultGoal))
	v.SetDefault("refresh.max_age", refresh.MaxAge)
	v.SetDefault("refresh.pass_timeout", refresh.PassTimeout)
	v.SetDefault("refresh.launches_per_minute", refresh.LaunchesPerMinute)
	v.SetDefault("refresh.launch_burst", refresh.LaunchBurst)
	v.SetDefault("refresh.topic", refresh.Topic)
	v.SetDefault("archive.driver", ArchiveNone)
	v.SetDefault("archive.local_dir", "archive")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return fmt.Errorf("store.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.Postgres.DSN) == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres driver")
		}
		if c.Store.Postgres.MaxConns < 0 || c.Store.Postgres.MinConns < 0 {
			return fmt.Errorf("store.postgres connection bounds must be >= 0")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver)
	}
	switch c.Archive.Driver {
	case ArchiveNone, "":
	case ArchiveLocal:
		if strings.TrimSpace(c.Archive.LocalDir) == "" {
			return fmt.Errorf("archive.local_dir must be set for the local archive")
		}
	case ArchiveGCS:
		if strings.TrimSpace(c.Archive.Bucket) == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.driver %q is not one of none, local, gcs", c.Archive.Driver)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("ratelimit.max_requests must be > 0")
	}
	co := c.Coordinator
	if co.BackgroundThreshold > co.ForegroundThreshold {
		return fmt.Errorf("coordinator.background_threshold must not exceed foreground_threshold")
	}
	if co.PerSiteCap <= 0 || co.ForegroundCap <= 0 || co.MaxForegroundSites < 0 {
		return fmt.Errorf("coordinator caps must be > 0")
	}
	if co.SitePauseMax < co.SitePauseMin {
		return fmt.Errorf("coordinator.site_pause_max must be >= site_pause_min")
	}
	if _, err := opportunity.ParseGoal(co.DefaultGoal); err != nil {
		return fmt.Errorf("coordinator.default_goal: %w", err)
	}
	if c.Refresh.MaxAge <= 0 {
		return fmt.Errorf("refresh.max_age must be > 0")
	}
	if c.Refresh.LaunchesPerMinute < 0 {
		return fmt.Errorf("refresh.launches_per_minute must be >= 0")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// CoordinatorConfig converts the coordinator section.
func (c Config) CoordinatorConfig() coordinator.Config {
	goal, _ := opportunity.ParseGoal(c.Coordinator.DefaultGoal)
	return coordinator.Config{
		ForegroundThreshold: c.Coordinator.ForegroundThreshold,
		BackgroundThreshold: c.Coordinator.BackgroundThreshold,
		MaxForegroundSites:  c.Coordinator.MaxForegroundSites,
		PerSiteCap:          c.Coordinator.PerSiteCap,
		ForegroundCap:       c.Coordinator.ForegroundCap,
		ForegroundMaxAge:    c.Coordinator.ForegroundMaxAge,
		SitePauseMin:        c.Coordinator.SitePauseMin,
		SitePauseMax:        c.Coordinator.SitePauseMax,
		DefaultGoal:         goal,
	}
}

// RefreshConfig converts the refresh section.
func (c Config) RefreshConfig() coordinator.RefreshConfig {
	goal, _ := opportunity.ParseGoal(c.Coordinator.DefaultGoal)
	return coordinator.RefreshConfig{
		MaxAge:            c.Refresh.MaxAge,
		PassTimeout:       c.Refresh.PassTimeout,
		LaunchesPerMinute: c.Refresh.LaunchesPerMinute,
		LaunchBurst:       c.Refresh.LaunchBurst,
		Topic:             c.Refresh.Topic,
		DefaultGoal:       goal,
	}
}

// FetcherConfig builds the pacing profile for one pass. quick selects the
// short foreground timeouts.
func (c Config) FetcherConfig(quick bool) fetcher.Config {
	cfg := fetcher.Config{Profile: fetcher.FullProfile()}
	if quick {
		cfg.Profile = fetcher.QuickProfile()
	}
	if c.Fetcher.Pacing {
		cfg.Pacing = fetcher.DefaultPacing()
	}
	if c.Fetcher.ReadingPauses {
		cfg.Reading = fetcher.DefaultReading()
	}
	return cfg
}

// RateLimitConfig converts the ratelimit section.
func (c Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		MaxRequests:   c.RateLimit.MaxRequests,
		Cooldown:      c.RateLimit.Cooldown,
		SuspendFor:    c.RateLimit.SuspendFor,
		HistoryWindow: c.RateLimit.HistoryWindow,
	}
}

// RetryConfig converts the retry section.
func (c Config) RetryConfig() retry.Config {
	cfg := retry.Config{MaxAttempts: c.Retry.MaxAttempts, Delays: retry.DefaultDelays()}
	if c.Retry.NoDelays {
		cfg.Delays = retry.DelayConfig{}
	}
	return cfg
}

// IdentityConfig applies overrides on top of the default identity pools.
func (c Config) IdentityConfig() identity.Config {
	cfg := identity.DefaultConfig()
	if len(c.Identity.UserAgents) > 0 {
		cfg.UserAgents = c.Identity.UserAgents
	}
	if len(c.Identity.Referers) > 0 {
		cfg.Referers = c.Identity.Referers
	}
	if c.Identity.PeriodicEvery > 0 {
		cfg.PeriodicEvery = c.Identity.PeriodicEvery
	}
	return cfg
}

// PostgresConfig converts the postgres store section.
func (c Config) PostgresConfig() postgres.Config {
	p := c.Store.Postgres
	return postgres.Config{
		DSN:             p.DSN,
		Schema:          p.Schema,
		MaxConns:        p.MaxConns,
		MinConns:        p.MinConns,
		MaxConnLifetime: p.MaxConnLifetime,
	}
}

// LocalArchiveConfig converts the archive section for the local driver.
func (c Config) LocalArchiveConfig() local.Config {
	return local.Config{BaseDir: c.Archive.LocalDir}
}

// GCSArchiveConfig converts the archive section for the gcs driver.
func (c Config) GCSArchiveConfig() gcs.Config {
	return gcs.Config{Bucket: c.Archive.Bucket, Prefix: c.Archive.Prefix}
}
