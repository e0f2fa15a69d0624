package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Broker struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		BaseURL   string `yaml:"base_url" default:"https://paper-api.alpaca.markets" validate:"url"`
	} `yaml:"broker"`
	Feed struct {
		Source         string        `yaml:"source" default:"websocket" validate:"oneof=websocket kafka"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.data.alpaca.markets/v2/iex"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`
	Kafka struct {
		Brokers    []string `yaml:"brokers"`
		Topic      string   `yaml:"topic" default:"ticks"`
		GroupID    string   `yaml:"group_id" default:"tradepulse"`
		Workers    int      `yaml:"workers" default:"1"`
		BufferSize int      `yaml:"buffer_size" default:"1024"`
		MinBytes   int      `yaml:"min_bytes" default:"1"`
		MaxBytes   int      `yaml:"max_bytes" default:"10485760"`
	} `yaml:"kafka"`
	Trading struct {
		Symbols         []string `yaml:"symbols" validate:"min=1"`
		ReferenceSymbol string   `yaml:"reference_symbol" default:"SPY"`
		Strategy        string   `yaml:"strategy" default:"hybrid" validate:"oneof=mean_reversion momentum hybrid"`
		WindowSize      int      `yaml:"window_size" default:"1000" validate:"gt=0"`
		MinConfidence   float64  `yaml:"min_confidence" default:"0.7" validate:"gte=0,lte=1"`
	} `yaml:"trading"`
	Risk struct {
		RiskPerTradePct float64 `yaml:"risk_per_trade_pct" default:"0.01" validate:"gt=0,lte=0.1"`
		MaxPositionPct  float64 `yaml:"max_position_pct" default:"0.10" validate:"gt=0,lte=1"`
		MaxDailyLossPct float64 `yaml:"max_daily_loss_pct" default:"0.02" validate:"gt=0,lte=1"`
		StopLossPct     float64 `yaml:"stop_loss_pct" default:"0.02" validate:"gt=0,lt=1"`
		TakeProfitPct   float64 `yaml:"take_profit_pct" default:"0.06" validate:"gt=0,lt=1"`
	} `yaml:"risk"`
	Notify struct {
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		Channel       string `yaml:"channel" default:"tradepulse:alerts"`
	} `yaml:"notify"`
	Journal struct {
		Enabled    bool          `yaml:"enabled"`
		Host       string        `yaml:"host" default:"localhost"`
		Port       int           `yaml:"port" default:"9000"`
		Database   string        `yaml:"database" default:"tradepulse"`
		User       string        `yaml:"user" default:"default"`
		Password   string        `yaml:"password"`
		BatchSize  int           `yaml:"batch_size" default:"256"`
		FlushEvery time.Duration `yaml:"flush_every" default:"5s"`
	} `yaml:"journal"`
}

// Load reads and parses a YAML configuration file and applies defaults.
// Validation is NOT run here: it is an explicit session-start step so
// components stay testable with injected configuration.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets and connection
// targets with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		c.Broker.APISecret = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Trading.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Notify.RedisAddr = v
	}

	return c, nil
}

// Validate checks the configuration. Called once at session start by the
// engine (VALIDATING_CONFIG phase), never as a load side effect.
func (c *Config) Validate() error {
	if c.Broker.APIKey == "" || c.Broker.APISecret == "" {
		return fmt.Errorf("broker.api_key and broker.api_secret are required")
	}
	if c.Feed.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when feed.source is kafka")
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
