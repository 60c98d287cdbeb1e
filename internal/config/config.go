package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Catalog struct {
		Dir            string `yaml:"dir"`
		Source         string `yaml:"source"`
		ReloadInterval string `yaml:"reload_interval"`
		CacheTTL       string `yaml:"cache_ttl"`
	} `yaml:"catalog"`
	Quiz struct {
		EliminationTTL     string  `yaml:"elimination_ttl"`
		FinalsTTL          string  `yaml:"finals_ttl"`
		EliminationCount   int     `yaml:"elimination_count"`
		ReviewCount        int     `yaml:"review_count"`
		StageCount         int     `yaml:"stage_count"`
		HighScoreThreshold float64 `yaml:"high_score_threshold"`
	} `yaml:"quiz"`
	Cleanup struct {
		Schedule string `yaml:"schedule"`
		Grace    string `yaml:"grace"`
	} `yaml:"cleanup"`
	RateLimit struct {
		MaxRequests int    `yaml:"max_requests"`
		Window      string `yaml:"window"`
	} `yaml:"rate_limit"`
}

const (
	CatalogSourceFS       = "fs"
	CatalogSourcePostgres = "postgres"
)

// LoadEnv reads a .env file into the process environment if one exists.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads YAML config from path. A missing file yields the defaults so the
// service can run from environment and flags alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Env, "APP_ENV")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Postgres.URL, "POSTGRES_URL")
	override(&cfg.AMQP.URL, "AMQP_URL")
	override(&cfg.Catalog.Dir, "CATALOG_DIR")
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "quiz.events"
	}
	if cfg.Catalog.Dir == "" {
		cfg.Catalog.Dir = "content"
	}
	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = CatalogSourceFS
	}
	if cfg.Quiz.EliminationCount <= 0 {
		cfg.Quiz.EliminationCount = 100
	}
	if cfg.Quiz.ReviewCount <= 0 {
		cfg.Quiz.ReviewCount = 10
	}
	if cfg.Quiz.StageCount <= 0 {
		cfg.Quiz.StageCount = 10
	}
	if cfg.Quiz.HighScoreThreshold <= 0 {
		cfg.Quiz.HighScoreThreshold = 90
	}
	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "@every 10m"
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = 120
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
