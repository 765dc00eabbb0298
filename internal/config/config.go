package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

type AppConfig struct {
	WSAddr         string
	HTTPAddr       string
	AllowedOrigins []string
	AllowGuests    bool

	RedisURL          string
	DatabaseURL       string
	NATSURL           string
	NATSSubjectPrefix string

	StockfishPath     string
	EnginePoolSize    int
	DefaultDifficulty int

	ClockSeconds          int
	TickInterval          time.Duration
	MaxDrawOffers         int
	DrawCooldown          time.Duration
	DrawResponseTimeout   time.Duration
	DisconnectGrace       time.Duration
	TerminalGrace         time.Duration
	OracleTimeout         time.Duration
	EngineTimeout         time.Duration
	OutboundQueueCapacity int

	MessagesDir string
}

// fileConfig is the optional YAML overlay named by ARENA_CONFIG_FILE.
// Environment variables win over file values.
type fileConfig struct {
	WSAddr         string   `yaml:"ws_addr"`
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RedisURL       string   `yaml:"redis_url"`
	DatabaseURL    string   `yaml:"database_url"`
	NATSURL        string   `yaml:"nats_url"`
	StockfishPath  string   `yaml:"stockfish_path"`
	MessagesDir    string   `yaml:"messages_dir"`

	Match struct {
		ClockSeconds           int `yaml:"clock_seconds"`
		TickIntervalMS         int `yaml:"tick_interval_ms"`
		MaxDrawOffers          int `yaml:"max_draw_offers"`
		DrawCooldownSec        int `yaml:"draw_cooldown_sec"`
		DrawResponseTimeoutSec int `yaml:"draw_response_timeout_sec"`
		DisconnectGraceSec     int `yaml:"disconnect_grace_sec"`
		TerminalGraceSec       int `yaml:"terminal_grace_sec"`
	} `yaml:"match"`
}

func defaults() *AppConfig {
	return &AppConfig{
		WSAddr:                ":8080",
		HTTPAddr:              ":8081",
		NATSSubjectPrefix:     "arena",
		EnginePoolSize:        2,
		DefaultDifficulty:     3,
		ClockSeconds:          600,
		TickInterval:          time.Second,
		MaxDrawOffers:         3,
		DrawCooldown:          30 * time.Second,
		DrawResponseTimeout:   30 * time.Second,
		DisconnectGrace:       60 * time.Second,
		TerminalGrace:         120 * time.Second,
		OracleTimeout:         2 * time.Second,
		EngineTimeout:         5 * time.Second,
		OutboundQueueCapacity: 64,
	}
}

func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG_FILE")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("WS_ADDR")); v != "" {
		cfg.WSAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if v := strings.TrimSpace(os.Getenv("ALLOW_GUESTS")); v != "" {
		cfg.AllowGuests = strings.EqualFold(v, "true") || v == "1"
	}

	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_URL")); v != "" {
		cfg.NATSURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NATS_SUBJECT_PREFIX")); v != "" {
		cfg.NATSSubjectPrefix = v
	}

	// Engine
	if v := strings.TrimSpace(os.Getenv("STOCKFISH_PATH")); v != "" {
		cfg.StockfishPath = v
	}
	intEnv("ENGINE_POOL_SIZE", &cfg.EnginePoolSize)
	intEnv("DEFAULT_DIFFICULTY", &cfg.DefaultDifficulty)

	// Match tunables
	intEnv("CLOCK_SECONDS", &cfg.ClockSeconds)
	intEnv("MAX_DRAW_OFFERS", &cfg.MaxDrawOffers)
	durationEnv("TICK_INTERVAL_MS", time.Millisecond, &cfg.TickInterval)
	durationEnv("DRAW_COOLDOWN_SEC", time.Second, &cfg.DrawCooldown)
	durationEnv("DRAW_RESPONSE_TIMEOUT_SEC", time.Second, &cfg.DrawResponseTimeout)
	durationEnv("DISCONNECT_GRACE_SEC", time.Second, &cfg.DisconnectGrace)
	durationEnv("TERMINAL_GRACE_SEC", time.Second, &cfg.TerminalGrace)
	durationEnv("ORACLE_TIMEOUT_MS", time.Millisecond, &cfg.OracleTimeout)
	durationEnv("ENGINE_TIMEOUT_MS", time.Millisecond, &cfg.EngineTimeout)
	intEnv("OUTBOUND_QUEUE_CAPACITY", &cfg.OutboundQueueCapacity)

	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.WSAddr == "" {
		return errors.New("WS_ADDR is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if c.ClockSeconds <= 0 {
		return errors.New("CLOCK_SECONDS must be > 0")
	}
	if c.DefaultDifficulty < 1 || c.DefaultDifficulty > 8 {
		return fmt.Errorf("DEFAULT_DIFFICULTY %d out of range 1-8", c.DefaultDifficulty)
	}
	if c.MaxDrawOffers < 0 {
		return errors.New("MAX_DRAW_OFFERS must be >= 0")
	}
	return nil
}

func applyFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	setString(&cfg.WSAddr, fc.WSAddr)
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.RedisURL, fc.RedisURL)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setString(&cfg.NATSURL, fc.NATSURL)
	setString(&cfg.StockfishPath, fc.StockfishPath)
	setString(&cfg.MessagesDir, fc.MessagesDir)
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = append([]string(nil), fc.AllowedOrigins...)
	}

	m := fc.Match
	if m.ClockSeconds > 0 {
		cfg.ClockSeconds = m.ClockSeconds
	}
	if m.TickIntervalMS > 0 {
		cfg.TickInterval = time.Duration(m.TickIntervalMS) * time.Millisecond
	}
	if m.MaxDrawOffers > 0 {
		cfg.MaxDrawOffers = m.MaxDrawOffers
	}
	if m.DrawCooldownSec > 0 {
		cfg.DrawCooldown = time.Duration(m.DrawCooldownSec) * time.Second
	}
	if m.DrawResponseTimeoutSec > 0 {
		cfg.DrawResponseTimeout = time.Duration(m.DrawResponseTimeoutSec) * time.Second
	}
	if m.DisconnectGraceSec > 0 {
		cfg.DisconnectGrace = time.Duration(m.DisconnectGraceSec) * time.Second
	}
	if m.TerminalGraceSec > 0 {
		cfg.TerminalGrace = time.Duration(m.TerminalGraceSec) * time.Second
	}
	return nil
}

func setString(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intEnv(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func durationEnv(key string, unit time.Duration, dst *time.Duration) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = time.Duration(n) * unit
		}
	}
}
