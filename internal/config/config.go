package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Database    DatabaseConfig `yaml:"database"`
	Auth        AuthConfig     `yaml:"auth"`
	Logs        LogsConfig     `yaml:"logs"`
	Bus         BusConfig      `yaml:"bus"`
	GameServers []GameServer   `yaml:"game_servers"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string        `yaml:"listen_addr"`
	HTTPPort   int           `yaml:"http_port"`
	SessionTTL time.Duration `yaml:"session_ttl"` // idle view sessions are dropped after this
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogsConfig tunes log reads, search and live tailing
type LogsConfig struct {
	Search           string        `yaml:"search"` // auto, grep or native
	GrepPath         string        `yaml:"grep_path"`
	DefaultChunkSize int           `yaml:"default_chunk_size"`
	MaxChunkSize     int           `yaml:"max_chunk_size"`
	MaxQueryLength   int           `yaml:"max_query_length"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RateLimit        float64       `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst        int           `yaml:"rate_burst"`
}

// BusConfig selects the NATS server live lines travel over
type BusConfig struct {
	URL string `yaml:"url"` // empty starts an embedded server
}

// GameServer is a rented server whose log is viewable
type GameServer struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	LogPath string `yaml:"log_path"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = 10 * time.Minute
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/hostlog/hostlog.db"
	}

	// Auth defaults
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}

	// Log defaults
	if cfg.Logs.Search == "" {
		cfg.Logs.Search = "auto"
	}
	if cfg.Logs.GrepPath == "" {
		cfg.Logs.GrepPath = "grep"
	}
	if cfg.Logs.DefaultChunkSize == 0 {
		cfg.Logs.DefaultChunkSize = 500
	}
	if cfg.Logs.MaxChunkSize == 0 {
		cfg.Logs.MaxChunkSize = 5000
	}
	if cfg.Logs.MaxQueryLength == 0 {
		cfg.Logs.MaxQueryLength = 200
	}
	if cfg.Logs.PollInterval == 0 {
		cfg.Logs.PollInterval = 100 * time.Millisecond
	}
	if cfg.Logs.RateBurst == 0 && cfg.Logs.RateLimit > 0 {
		cfg.Logs.RateBurst = int(cfg.Logs.RateLimit * 2)
	}
}

// Validate rejects settings the server cannot run with
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Logs.Search {
	case "auto", "grep", "native":
	default:
		errs = append(errs, fmt.Errorf("logs.search must be auto, grep or native, got %q", cfg.Logs.Search))
	}
	if cfg.Logs.DefaultChunkSize <= 0 || cfg.Logs.MaxChunkSize <= 0 {
		errs = append(errs, errors.New("logs chunk sizes must be positive"))
	} else if cfg.Logs.DefaultChunkSize >= cfg.Logs.MaxChunkSize {
		errs = append(errs, fmt.Errorf("logs.default_chunk_size (%d) must be below logs.max_chunk_size (%d)",
			cfg.Logs.DefaultChunkSize, cfg.Logs.MaxChunkSize))
	}
	if cfg.Logs.MaxQueryLength < 0 {
		errs = append(errs, errors.New("logs.max_query_length must not be negative"))
	}
	if cfg.Logs.RateLimit < 0 || cfg.Logs.RateBurst < 0 {
		errs = append(errs, errors.New("logs rate limits must not be negative"))
	}
	if cfg.Server.SessionTTL < 0 {
		errs = append(errs, errors.New("server.session_ttl must not be negative"))
	}
	seen := make(map[string]bool)
	for i, gs := range cfg.GameServers {
		if gs.Name == "" {
			errs = append(errs, fmt.Errorf("game_servers[%d]: name is required", i))
			continue
		}
		if seen[gs.Name] {
			errs = append(errs, fmt.Errorf("game_servers[%d]: duplicate name %q", i, gs.Name))
		}
		seen[gs.Name] = true
	}
	return errors.Join(errs...)
}
