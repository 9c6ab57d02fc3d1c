package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MARKETCORE_KAFKA_BROKERS.
const EnvPrefix = "MARKETCORE"

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development test staging production"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Log         LogConfig        `yaml:"log"`
	Analysis    AnalysisConfig   `yaml:"analysis"`
	Session     SessionConfig    `yaml:"session"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	Projection  ProjectionConfig `yaml:"projection"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

// Boolean switches are phrased negatively so an explicit false survives defaults.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path" default:"/metrics"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	TimeFormat string `yaml:"time_format" default:"2006-01-02T15:04:05.000Z07:00"`
}

// AnalysisConfig mirrors the option structs of the regime, structure and
// confluence packages field for field, so it converts directly.
type AnalysisConfig struct {
	Interval   string           `yaml:"interval" default:"15m"`
	Regime     RegimeConfig     `yaml:"regime"`
	Structure  StructureConfig  `yaml:"structure"`
	Confluence ConfluenceConfig `yaml:"confluence"`
	MTF        MTFConfig        `yaml:"mtf"`
}

type RegimeConfig struct {
	FastWindow  int     `yaml:"fast_window" default:"50" validate:"gte=2"`
	SlowWindow  int     `yaml:"slow_window" default:"200" validate:"gtefield=FastWindow"`
	SlopeLag    int     `yaml:"slope_lag" default:"10" validate:"gte=1"`
	BandPeriod  int     `yaml:"band_period" default:"20" validate:"gte=2"`
	BandDevs    float64 `yaml:"band_devs" default:"2" validate:"gt=0"`
	LowVolRatio float64 `yaml:"low_vol_ratio" default:"0.8" validate:"gt=0"`
	Extension   float64 `yaml:"extension" default:"0.03" validate:"gt=0"`
}

type StructureConfig struct {
	NumLevels       int     `yaml:"num_levels" default:"5" validate:"gte=1"`
	ToleranceATR    float64 `yaml:"tolerance_atr" default:"0.5" validate:"gt=0"`
	MinTolerance    float64 `yaml:"min_tolerance" default:"0.002" validate:"gt=0"`
	MaxTolerance    float64 `yaml:"max_tolerance" default:"0.008" validate:"gtefield=MinTolerance"`
	BreakATR        float64 `yaml:"break_atr" default:"0.3" validate:"gt=0"`
	ImbalanceFactor float64 `yaml:"imbalance_factor" default:"2" validate:"gt=0"`
	AverageWindow   int     `yaml:"average_window" default:"20" validate:"gte=1"`
	StructLookback  int     `yaml:"struct_lookback" default:"15" validate:"gte=1"`
	Mitigation      float64 `yaml:"mitigation" default:"0.5" validate:"gt=0,lte=1"`
	ConfluenceATR   float64 `yaml:"confluence_atr" default:"1" validate:"gt=0"`
}

type ConfluenceConfig struct {
	RVOLLookback  int     `yaml:"rvol_lookback" default:"20" validate:"gte=1"`
	RVOLFull      float64 `yaml:"rvol_full" default:"1.5" validate:"gt=0"`
	RVOLHalf      float64 `yaml:"rvol_half" default:"1.0" validate:"gt=0,ltefield=RVOLFull"`
	MinProjection float64 `yaml:"min_projection" default:"55" validate:"gt=0,lte=100"`
	ZonePadATR    float64 `yaml:"zone_pad_atr" default:"1" validate:"gte=0"`
}

// MTFConfig lists the higher intervals, coarsest last.
type MTFConfig struct {
	Disabled    bool     `yaml:"disabled"`
	Intervals   []string `yaml:"intervals" default:"[\"1h\",\"4h\"]" validate:"max=2,dive,required"`
	MacroWeight int      `yaml:"macro_weight" default:"3" validate:"gte=0"`
	BaseWeight  int      `yaml:"base_weight" default:"2" validate:"gte=0"`
}

type SessionConfig struct {
	Store     string        `yaml:"store" default:"file" validate:"oneof=file redis postgres memory"`
	Dir       string        `yaml:"dir" default:"data/sessions"`
	DisplayTZ string        `yaml:"display_tz" default:"America/Santiago"`
	KeyPrefix string        `yaml:"key_prefix" default:"marketcore"`
	TTL       time.Duration `yaml:"ttl" default:"0s"`
}

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled" default:"false"`
	Brokers       []string `yaml:"brokers"`
	BarsTopic     string   `yaml:"bars_topic" default:"bars"`
	AnalysisTopic string   `yaml:"analysis_topic" default:"analysis"`
	LogsTopic     string   `yaml:"logs_topic" default:"logs.aggregated"`
	RequiredAcks  int      `yaml:"required_acks" default:"-1"`
	Compression   string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Producer      struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"marketcore"`
		Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
		BufferSize int           `yaml:"buffer_size" default:"1024"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"bars.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled" default:"false"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"marketcore"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	Table            string        `yaml:"table" default:"marketcore.bars_1m"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
	QueryTimeout time.Duration `yaml:"query_timeout" default:"5s"`
}

type ProjectionConfig struct {
	URL        string        `yaml:"url"`
	Path       string        `yaml:"path" default:"/projection/predict"`
	Timeout    time.Duration `yaml:"timeout" default:"3s"`
	Retries    int           `yaml:"retries" default:"3" validate:"gte=0"`
	MaxElapsed time.Duration `yaml:"max_elapsed" default:"5s"`
	Bars       int           `yaml:"bars" default:"200" validate:"gte=1"`
	Breaker    struct {
		MaxFailures uint32        `yaml:"max_failures" default:"5" validate:"gte=1"`
		OpenTimeout time.Duration `yaml:"open_timeout" default:"30s"`
		Interval    time.Duration `yaml:"interval" default:"60s"`
	} `yaml:"breaker"`
}

type PipelineConfig struct {
	History       int           `yaml:"history" default:"1000" validate:"gte=1"`
	FastPathRate  float64       `yaml:"fast_path_rate" default:"1" validate:"gt=0"`
	FastPathBurst int           `yaml:"fast_path_burst" default:"1" validate:"gte=1"`
	CacheTTL      time.Duration `yaml:"cache_ttl" default:"10m"`
	Cache         string        `yaml:"cache" default:"memory" validate:"oneof=memory redis"`
	Symbols       []string      `yaml:"symbols"`
	Bootstrap     int           `yaml:"bootstrap" default:"1000" validate:"gte=0"`
}

// envOverrides lists the settings that may be supplied through the environment.
// Empty values leave the file configuration untouched.
type envOverrides struct {
	Environment    string   `envconfig:"ENVIRONMENT"`
	ServerPort     int      `envconfig:"SERVER_PORT"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS"`
	KafkaBarsTopic string   `envconfig:"KAFKA_BARS_TOPIC"`
	KafkaAnalysis  string   `envconfig:"KAFKA_ANALYSIS_TOPIC"`
	SessionStore   string   `envconfig:"SESSION_STORE"`
	SessionDir     string   `envconfig:"SESSION_DIR"`
	DisplayTZ      string   `envconfig:"DISPLAY_TZ"`
	RedisAddr      string   `envconfig:"REDIS_ADDR"`
	RedisPassword  string   `envconfig:"REDIS_PASSWORD"`
	PostgresDSN    string   `envconfig:"POSTGRES_DSN"`
	ClickHouseHost string   `envconfig:"CLICKHOUSE_HOST"`
	ClickHouseUser string   `envconfig:"CLICKHOUSE_USER"`
	ClickHousePass string   `envconfig:"CLICKHOUSE_PASSWORD"`
	ProjectionURL  string   `envconfig:"PROJECTION_URL"`
	Symbols        []string `envconfig:"SYMBOLS"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file, then applies defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then environment overrides.
// A missing file falls back to defaults.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var (
		c   *Config
		err error
	)
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		c, err = Load(path)
	} else {
		c, err = Default()
	}
	if err != nil {
		return nil, err
	}

	var ov envOverrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	c.apply(ov)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) apply(ov envOverrides) {
	setString(&c.Environment, ov.Environment)
	if ov.ServerPort != 0 {
		c.Server.Port = ov.ServerPort
	}
	setString(&c.Log.Level, ov.LogLevel)
	if len(ov.KafkaBrokers) > 0 {
		c.Kafka.Brokers = ov.KafkaBrokers
		c.Kafka.Enabled = true
	}
	setString(&c.Kafka.BarsTopic, ov.KafkaBarsTopic)
	setString(&c.Kafka.AnalysisTopic, ov.KafkaAnalysis)
	setString(&c.Session.Store, ov.SessionStore)
	setString(&c.Session.Dir, ov.SessionDir)
	setString(&c.Session.DisplayTZ, ov.DisplayTZ)
	setString(&c.Redis.Addr, ov.RedisAddr)
	setString(&c.Redis.Password, ov.RedisPassword)
	setString(&c.Postgres.DSN, ov.PostgresDSN)
	if ov.ClickHouseHost != "" {
		c.ClickHouse.Host = ov.ClickHouseHost
		c.ClickHouse.Enabled = true
	}
	setString(&c.ClickHouse.User, ov.ClickHouseUser)
	setString(&c.ClickHouse.Password, ov.ClickHousePass)
	setString(&c.Projection.URL, ov.ProjectionURL)
	if len(ov.Symbols) > 0 {
		c.Pipeline.Symbols = ov.Symbols
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks field constraints and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Session.Store == "postgres" && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for the postgres session store")
	}
	if _, err := time.LoadLocation(c.Session.DisplayTZ); err != nil {
		return fmt.Errorf("session.display_tz: %w", err)
	}
	return nil
}
