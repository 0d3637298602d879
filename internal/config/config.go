// Package config loads harvest settings from defaults, an optional YAML
// file, HARVEST_* environment variables and bound command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/harvest/internal/extract"
	"github.com/FranksOps/harvest/internal/fingerprint"
	"github.com/FranksOps/harvest/internal/schedule"
	"github.com/FranksOps/harvest/pkg/useragent"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HARVEST_SEARCH_CAP.
const EnvPrefix = "HARVEST"

type Config struct {
	Storage  Storage  `mapstructure:"storage"`
	Search   Search   `mapstructure:"search"`
	Scrape   Scrape   `mapstructure:"scrape"`
	Extract  Extract  `mapstructure:"extract"`
	Download Download `mapstructure:"download"`
	Archive  Archive  `mapstructure:"archive"`
	Log      Log      `mapstructure:"log"`
	Metrics  Metrics  `mapstructure:"metrics"`
}

type Storage struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Search struct {
	Providers  string        `mapstructure:"providers"`
	Cap        int           `mapstructure:"cap"`
	Retries    int           `mapstructure:"retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SerpAPIKey string        `mapstructure:"serpapi_key"`
	RPS        float64       `mapstructure:"rps"`
	Headless   bool          `mapstructure:"headless"`
}

type Scrape struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Delay        time.Duration `mapstructure:"delay"`
	UserAgent    string        `mapstructure:"user_agent"`
	Fingerprint  string        `mapstructure:"fingerprint"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	Proxies      []string      `mapstructure:"proxies"`
	ProxiesFile  string        `mapstructure:"proxies_file"`
}

type Extract struct {
	Features string `mapstructure:"features"`
	Mode     string `mapstructure:"mode"`
}

type Download struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	YTDLP   string        `mapstructure:"ytdlp"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Archive struct {
	Path string `mapstructure:"path"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type Metrics struct {
	Port int `mapstructure:"port"`
}

// Drivers lists the accepted storage.driver values.
var Drivers = []string{"sqlite", "postgres", "bolt"}

// New returns a viper instance with defaults and environment lookup set up.
// Callers may bind flags on it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "harvest.db")

	v.SetDefault("search.providers", "all")
	v.SetDefault("search.cap", 10)
	v.SetDefault("search.retries", 3)
	v.SetDefault("search.backoff", time.Second)
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.serpapi_key", "")
	v.SetDefault("search.rps", 1.0)
	v.SetDefault("search.headless", false)

	v.SetDefault("scrape.timeout", 30*time.Second)
	v.SetDefault("scrape.delay", time.Second)
	v.SetDefault("scrape.user_agent", useragent.Desktop)
	v.SetDefault("scrape.fingerprint", string(fingerprint.ProfileGo))
	v.SetDefault("scrape.max_body_bytes", int64(10<<20))
	v.SetDefault("scrape.proxies", []string{})
	v.SetDefault("scrape.proxies_file", "")

	v.SetDefault("extract.features", "text,link")
	v.SetDefault("extract.mode", "sync")

	v.SetDefault("download.enabled", false)
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("download.ytdlp", "yt-dlp")
	v.SetDefault("download.timeout", 2*time.Minute)

	v.SetDefault("archive.path", "results.jsonl")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.port", 0)
}

// Load reads path (or ./harvest.yaml when path is empty and the file
// exists) into a validated Config.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else {
		v.SetConfigName("harvest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config: reading harvest.yaml: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if !contains(Drivers, c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver %q (want one of %s)", c.Storage.Driver, strings.Join(Drivers, ", ")))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is empty"))
	}
	if c.Search.Cap <= 0 {
		errs = append(errs, fmt.Errorf("search.cap must be positive, got %d", c.Search.Cap))
	}
	if c.Search.Retries <= 0 {
		errs = append(errs, fmt.Errorf("search.retries must be positive, got %d", c.Search.Retries))
	}
	if _, err := c.Mode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Kinds(); err != nil {
		errs = append(errs, err)
	}
	if _, err := fingerprint.ParseProfile(c.Scrape.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format %q (want text or json)", c.Log.Format))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Mode parses extract.mode.
func (c Config) Mode() (schedule.Mode, error) {
	return schedule.Parse(c.Extract.Mode)
}

// Kinds parses extract.features.
func (c Config) Kinds() ([]extract.Kind, error) {
	return extract.ParseKinds(c.Extract.Features)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
