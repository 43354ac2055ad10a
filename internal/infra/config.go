package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // trading timezone on hosts without zoneinfo

	"stock_sim/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StaticQuote is a configured market snapshot for the static gateway.
type StaticQuote struct {
	Bid  decimal.Decimal `yaml:"bid"`
	Ask  decimal.Decimal `yaml:"ask"`
	Last decimal.Decimal `yaml:"last"`
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 배포별 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Storage struct {
		DBPath       string `yaml:"db_path"`
		DepthBackend string `yaml:"depth_backend"` // sqlite | pebble
		PebbleDir    string `yaml:"pebble_dir"`
	} `yaml:"storage"`

	Depth struct {
		Levels          int     `yaml:"levels"`
		InitialSkipProb float64 `yaml:"initial_skip_prob"`
		SkipProbStep    float64 `yaml:"skip_prob_step"`
		MaxSkipProb     float64 `yaml:"max_skip_prob"`
		Seed            int64   `yaml:"seed"` // 0 = time based
		CacheSize       int     `yaml:"cache_size"`
	} `yaml:"depth"`

	Trading struct {
		InitialCash      decimal.Decimal `yaml:"initial_cash"`
		BrokerageFee     decimal.Decimal `yaml:"brokerage_fee"`
		Timezone         string          `yaml:"timezone"`
		OpenHour         int             `yaml:"open_hour"`
		CloseHour        int             `yaml:"close_hour"`
		TradingDays      []string        `yaml:"trading_days"`
		SweepIntervalSec int             `yaml:"sweep_interval_sec"`
	} `yaml:"trading"`

	MarketData struct {
		Provider   string                 `yaml:"provider"` // http | static
		URL        string                 `yaml:"url"`
		BatchSize  int                    `yaml:"batch_size"`
		TimeoutSec int                    `yaml:"timeout_sec"`
		Static     map[string]StaticQuote `yaml:"static"`
	} `yaml:"market_data"`

	API struct {
		Listen         string   `yaml:"listen"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"api"`

	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"events"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Default returns a configuration that runs locally without any file.
func Default() *Config {
	var cfg Config
	cfg.App.Name = "stocksim"
	cfg.App.Version = "dev"

	cfg.Storage.DBPath = "data/stocksim.db"
	cfg.Storage.DepthBackend = "sqlite"
	cfg.Storage.PebbleDir = "data/depth"

	cfg.Depth.Levels = 10
	cfg.Depth.InitialSkipProb = 0.20
	cfg.Depth.SkipProbStep = 0.02
	cfg.Depth.MaxSkipProb = 0.95
	cfg.Depth.CacheSize = 256

	cfg.Trading.InitialCash = decimal.NewFromInt(50000)
	cfg.Trading.BrokerageFee = decimal.NewFromInt(20)
	cfg.Trading.Timezone = "Australia/Sydney"
	cfg.Trading.OpenHour = 10
	cfg.Trading.CloseHour = 16
	cfg.Trading.TradingDays = []string{"mon", "tue", "wed", "thu", "fri"}
	cfg.Trading.SweepIntervalSec = 300

	cfg.MarketData.Provider = "http"
	cfg.MarketData.URL = "http://localhost:9090/quotes"
	cfg.MarketData.BatchSize = 100
	cfg.MarketData.TimeoutSec = 10

	cfg.API.Listen = ":8080"
	cfg.API.AllowedOrigins = []string{"*"}

	cfg.Events.KafkaTopic = "stocksim.fills"

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Logging.File = "stocksim.log"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// An empty path starts from Default. A .env file in the working directory is loaded before
// environment overrides are applied.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &domain.ConfigError{Field: path, Err: err}
		}
	}

	_ = godotenv.Load()
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Storage
	if c.Storage.DBPath == "" {
		return &domain.ConfigError{Field: "storage.db_path", Err: errors.New("is required")}
	}
	switch c.Storage.DepthBackend {
	case "sqlite":
	case "pebble":
		if c.Storage.PebbleDir == "" {
			return &domain.ConfigError{Field: "storage.pebble_dir", Err: errors.New("is required for the pebble backend")}
		}
	default:
		return &domain.ConfigError{Field: "storage.depth_backend", Err: fmt.Errorf("unknown backend %q", c.Storage.DepthBackend)}
	}

	// Depth
	if c.Depth.Levels <= 0 {
		return &domain.ConfigError{Field: "depth.levels", Err: errors.New("must be positive")}
	}
	if c.Depth.InitialSkipProb < 0 || c.Depth.InitialSkipProb >= 1 {
		return &domain.ConfigError{Field: "depth.initial_skip_prob", Err: errors.New("must be in [0, 1)")}
	}
	if c.Depth.SkipProbStep < 0 {
		return &domain.ConfigError{Field: "depth.skip_prob_step", Err: errors.New("must not be negative")}
	}
	if c.Depth.MaxSkipProb < c.Depth.InitialSkipProb || c.Depth.MaxSkipProb >= 1 {
		return &domain.ConfigError{Field: "depth.max_skip_prob", Err: errors.New("must be in [initial_skip_prob, 1)")}
	}

	// Trading
	if c.Trading.InitialCash.IsNegative() {
		return &domain.ConfigError{Field: "trading.initial_cash", Err: errors.New("must not be negative")}
	}
	if c.Trading.BrokerageFee.IsNegative() {
		return &domain.ConfigError{Field: "trading.brokerage_fee", Err: errors.New("must not be negative")}
	}
	if _, err := time.LoadLocation(c.Trading.Timezone); err != nil {
		return &domain.ConfigError{Field: "trading.timezone", Err: err}
	}
	if c.Trading.OpenHour < 0 || c.Trading.CloseHour > 24 || c.Trading.OpenHour >= c.Trading.CloseHour {
		return &domain.ConfigError{Field: "trading.open_hour", Err: errors.New("open_hour must be before close_hour within 0-24")}
	}
	if _, err := ParseWeekdays(c.Trading.TradingDays); err != nil {
		return &domain.ConfigError{Field: "trading.trading_days", Err: err}
	}
	if c.Trading.SweepIntervalSec <= 0 {
		return &domain.ConfigError{Field: "trading.sweep_interval_sec", Err: errors.New("must be positive")}
	}

	// Market data
	switch c.MarketData.Provider {
	case "http":
		if !strings.HasPrefix(c.MarketData.URL, "http://") && !strings.HasPrefix(c.MarketData.URL, "https://") {
			return &domain.ConfigError{Field: "market_data.url", Err: fmt.Errorf("invalid URL %q", c.MarketData.URL)}
		}
	case "static":
	default:
		return &domain.ConfigError{Field: "market_data.provider", Err: fmt.Errorf("unknown provider %q", c.MarketData.Provider)}
	}
	if c.MarketData.BatchSize <= 0 {
		return &domain.ConfigError{Field: "market_data.batch_size", Err: errors.New("must be positive")}
	}

	// Events
	if len(c.Events.KafkaBrokers) > 0 && c.Events.KafkaTopic == "" {
		return &domain.ConfigError{Field: "events.kafka_topic", Err: errors.New("is required when brokers are set")}
	}

	return nil
}

// SweepInterval returns the scheduler period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Trading.SweepIntervalSec) * time.Second
}

// ParseWeekdays converts three-letter day names to time.Weekday values.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
		"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		wd, ok := days[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		out = append(out, wd)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one trading day is required")
	}
	return out, nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("STOCKSIM_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("STOCKSIM_QUOTES_URL"); v != "" {
		cfg.MarketData.URL = v
	}
	if v := os.Getenv("STOCKSIM_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("STOCKSIM_KAFKA_BROKERS"); v != "" {
		cfg.Events.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("STOCKSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
