/*
Package config loads the scraper's YAML configuration. Missing values are filled from `default`
struct tags, the result is validated, and secrets can be overridden from the environment.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/shanehull/bullionscraper/internal/logger"
	"github.com/shanehull/bullionscraper/internal/types"
	"github.com/shanehull/bullionscraper/internal/validate"
)

type Config struct {
	Instruments  map[types.Metal][]types.Grade  `yaml:"instruments"`
	Sources      Sources                        `yaml:"sources"`
	Orchestrator Orchestrator                   `yaml:"orchestrator"`
	Recognition  Recognition                    `yaml:"recognition"`
	Plausibility map[types.Metal]validate.Range `yaml:"plausibility" validate:"dive"`
	Validation   struct {
		CoverageThreshold float64 `yaml:"coverage_threshold" default:"0.8" validate:"gte=0,lt=1"`
	} `yaml:"validation"`
	Output struct {
		Path string `yaml:"path" default:"prices.json" validate:"required"`
	} `yaml:"output"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	ClickHouse ClickHouse `yaml:"clickhouse"`
	Metrics    struct {
		Pushgateway string `yaml:"pushgateway" validate:"omitempty,url"`
		Job         string `yaml:"job" default:"bullionscraper"`
	} `yaml:"metrics"`
	Email   Email         `yaml:"email"`
	History History       `yaml:"history"`
	Log     logger.Config `yaml:"log"`
}

type Sources struct {
	Primary Source `yaml:"primary"`
	Backup  Backup `yaml:"backup"`
}

type Source struct {
	Name      string        `yaml:"name" default:"isagha"`
	URL       string        `yaml:"url" default:"https://market.isagha.com/prices" validate:"url"`
	UserAgent string        `yaml:"user_agent" default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
	Timeout   time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
}

// Backup is a text table page. Columns are zero-based cell indexes within a row.
type Backup struct {
	Name       string        `yaml:"name" default:"goldprice-table"`
	URL        string        `yaml:"url" default:"https://egypt.gold-price-today.com/" validate:"omitempty,url"`
	UserAgent  string        `yaml:"user_agent" default:"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
	Timeout    time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
	SellColumn int           `yaml:"sell_column" default:"1" validate:"gte=1"`
	BuyColumn  int           `yaml:"buy_column" default:"2" validate:"gte=1,nefield=SellColumn"`
}

type Orchestrator struct {
	PrimaryAttempts int           `yaml:"primary_attempts" default:"3" validate:"gte=1,lte=10"`
	RetryPause      time.Duration `yaml:"retry_pause" default:"2s" validate:"gte=0"`
	Workers         int           `yaml:"workers" default:"4" validate:"gte=1"`
	FieldTimeout    time.Duration `yaml:"field_timeout" default:"90s" validate:"gt=0"`
}

type Recognition struct {
	Engine         string        `yaml:"engine" default:"tesseract" validate:"oneof=tesseract gemini"`
	Language       string        `yaml:"language" default:"eng"`
	GeminiModel    string        `yaml:"gemini_model" default:"gemini-2.5-flash"`
	GeminiAPIKey   string        `yaml:"gemini_api_key" validate:"required_if=Engine gemini"`
	VariantTimeout time.Duration `yaml:"variant_timeout" default:"10s" validate:"gt=0"`
	VariantWorkers int           `yaml:"variant_workers" default:"3" validate:"gte=1"`
	OutlierRatio   float64       `yaml:"outlier_ratio" default:"5" validate:"gt=1"`
	OutlierFloor   float64       `yaml:"outlier_floor" default:"10" validate:"gte=0"`
}

type Redis struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db" validate:"gte=0"`
	Prefix     string        `yaml:"prefix" default:"bullion"`
	HistoryLen int64         `yaml:"history_len" default:"500" validate:"gte=1"`
	TTL        time.Duration `yaml:"ttl"`
}

func (r Redis) Enabled() bool { return r.Addr != "" }

type Kafka struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"bullion.snapshots"`
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type ClickHouse struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" default:"9000"`
	Database string `yaml:"database" default:"default"`
	User     string `yaml:"user" default:"default"`
	Password string `yaml:"password"`
	Table    string `yaml:"table" default:"bullion_prices" validate:"required"`
}

func (c ClickHouse) Enabled() bool { return c.Host != "" }

// DSN builds a clickhouse:// connection string.
func (c ClickHouse) DSN() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

type Email struct {
	Enabled    bool   `yaml:"enabled"`
	SMTPServer string `yaml:"smtp_server" validate:"required_if=Enabled true"`
	SMTPPort   int    `yaml:"smtp_port" default:"587"`
	SMTPUser   string `yaml:"smtp_user"`
	SMTPPass   string `yaml:"smtp_pass"`
	FromEmail  string `yaml:"from" validate:"required_if=Enabled true"`
	ToEmail    string `yaml:"to" validate:"required_if=Enabled true"`
}

type History struct {
	Dir      string `yaml:"dir"`
	Timezone string `yaml:"timezone" default:"Africa/Cairo"`
}

// DefaultInstruments are the grades quoted by both sources.
func DefaultInstruments() map[types.Metal][]types.Grade {
	return map[types.Metal][]types.Grade{
		types.Gold:   {"24", "21", "18"},
		types.Silver: {"999", "925", "800"},
	}
}

var structValidator = validator.New()

// Load reads path, applies defaults and validates. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv is Load with secrets and endpoints overridden from environment variables before
// validation.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SMTP_PASS"); v != "" {
		c.Email.SMTPPass = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Recognition.GeminiAPIKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("PUSHGATEWAY_URL"); v != "" {
		c.Metrics.Pushgateway = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	var c Config

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.applyDefaults(); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	if len(c.Instruments) == 0 {
		c.Instruments = DefaultInstruments()
	}
	if len(c.Plausibility) == 0 {
		c.Plausibility = validate.DefaultPlausibility()
	}
	return nil
}

// Validate checks struct constraints and the cross-section rules tags cannot express.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return err
	}

	for metal, grades := range c.Instruments {
		if !metal.Valid() {
			return fmt.Errorf("instruments: unknown metal %q", metal)
		}
		if len(grades) == 0 {
			return fmt.Errorf("instruments.%s: no grades", metal)
		}
		r, ok := c.Plausibility[metal]
		if !ok {
			return fmt.Errorf("plausibility.%s: range is required", metal)
		}
		if r.Max <= r.Min {
			return fmt.Errorf("plausibility.%s: max %v must exceed min %v", metal, r.Max, r.Min)
		}
	}

	if c.Orchestrator.FieldTimeout < c.Recognition.VariantTimeout {
		return fmt.Errorf("orchestrator.field_timeout (%s) is shorter than recognition.variant_timeout (%s)",
			c.Orchestrator.FieldTimeout, c.Recognition.VariantTimeout)
	}

	return nil
}

// InstrumentKeys flattens Instruments into output order.
func (c *Config) InstrumentKeys() []types.InstrumentKey {
	var keys []types.InstrumentKey
	for m, grades := range c.Instruments {
		for _, g := range grades {
			keys = append(keys, types.InstrumentKey{Metal: m, Grade: g})
		}
	}
	types.SortInstruments(keys)
	return keys
}
