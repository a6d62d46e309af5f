package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/config.yaml"

type Config struct {
	App       AppConfig       `yaml:"app" envconfig:"APP"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Log       LogConfig       `yaml:"log" envconfig:"LOG"`
	Cache     CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Weather   WeatherConfig   `yaml:"weather" envconfig:"WEATHER"`
	Observe   ObserveConfig   `yaml:"observe" envconfig:"OBSERVE"`
	Summary   SummaryConfig   `yaml:"summary" envconfig:"SUMMARY"`
}

type AppConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version" validate:"required"`
	Env     string `yaml:"env" validate:"omitempty,oneof=development staging production"`
}

type ServerConfig struct {
	Port         string `yaml:"port" validate:"required,numeric"`
	ReadTimeout  int    `yaml:"read_timeout" split_words:"true" validate:"gte=0"`
	WriteTimeout int    `yaml:"write_timeout" split_words:"true" validate:"gte=0"`
	IdleTimeout  int    `yaml:"idle_timeout" split_words:"true" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format"`
}

type CacheConfig struct {
	Dir                 string        `yaml:"dir" validate:"required"`
	CoordinatePrecision int           `yaml:"coordinate_precision" split_words:"true" validate:"gte=0,lte=8"`
	LocationPrecision   int           `yaml:"location_precision" split_words:"true" validate:"gte=0,lte=8"`
	LocationTTL         time.Duration `yaml:"location_ttl" split_words:"true"`
	StaleRetention      time.Duration `yaml:"stale_retention" split_words:"true"`
	OpenTimeout         time.Duration `yaml:"open_timeout" split_words:"true"`
}

type RateLimitConfig struct {
	Ceiling time.Duration `yaml:"ceiling"`
}

type WeatherConfig struct {
	Fallback  string             `yaml:"fallback" validate:"required"`
	UserAgent string             `yaml:"user_agent" split_words:"true"`
	Regions   []RegionConfig     `yaml:"regions" ignored:"true" validate:"dive"`
	APIs      []WeatherAPIConfig `yaml:"apis" ignored:"true" validate:"dive"`
}

// RegionConfig is a named bounding box routed to one provider.
type RegionConfig struct {
	Name     string  `yaml:"name" validate:"required"`
	Provider string  `yaml:"provider" validate:"required"`
	LatMin   float64 `yaml:"lat_min" validate:"gte=-90,lte=90"`
	LatMax   float64 `yaml:"lat_max" validate:"gte=-90,lte=90,gtefield=LatMin"`
	LonMin   float64 `yaml:"lon_min" validate:"gte=-180,lte=180"`
	LonMax   float64 `yaml:"lon_max" validate:"gte=-180,lte=180,gtefield=LonMin"`
}

type WeatherAPIConfig struct {
	Name        string        `yaml:"name" validate:"required"`
	BaseURL     string        `yaml:"base_url,omitempty" validate:"omitempty,url"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Timeout     int           `yaml:"timeout" validate:"gte=0"`
	MinInterval time.Duration `yaml:"min_interval"`
	MaxRetries  int           `yaml:"max_retries" validate:"gte=0"`
}

type ObserveConfig struct {
	SentryDSN      string        `yaml:"sentry_dsn" split_words:"true"`
	ReportInterval time.Duration `yaml:"report_interval" split_words:"true"`
	PruneInterval  time.Duration `yaml:"prune_interval" split_words:"true"`
}

type SummaryConfig struct {
	Timezone string `yaml:"timezone"`
}

// ConfigProvider loads and validates configuration.
type ConfigProvider interface {
	Load() (*Config, error)
	Validate(config *Config) error
}

// FileConfigProvider reads defaults, then the YAML file, then the environment.
type FileConfigProvider struct {
	path     string
	validate *validator.Validate
}

func NewFileConfigProvider(path string) *FileConfigProvider {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(fld.Name)
		}
		return name
	})

	return &FileConfigProvider{
		path:     path,
		validate: v,
	}
}

// NewConfig loads the configuration from CONFIG_PATH (default config/config.yaml).
func NewConfig() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	return NewConfigWithProvider(NewFileConfigProvider(path))
}

func NewConfigWithProvider(provider ConfigProvider) (*Config, error) {
	cnf, err := provider.Load()
	if err != nil {
		return nil, err
	}

	if err = provider.Validate(cnf); err != nil {
		return nil, err
	}

	return cnf, nil
}

func (p *FileConfigProvider) Load() (*Config, error) {
	cnf := Default()

	// Read from YAML file first
	if err := p.loadFromFile(cnf); err != nil {
		return nil, err
	}

	// Override with environment variables
	if err := envconfig.Process("", cnf); err != nil {
		return nil, fmt.Errorf("error environment variable parsing: %w", err)
	}

	for i := range cnf.Weather.APIs {
		if key := os.Getenv(strings.ToUpper(cnf.Weather.APIs[i].Name) + "_API_KEY"); key != "" {
			cnf.Weather.APIs[i].APIKey = key
		}
	}

	return cnf, nil
}

func (p *FileConfigProvider) loadFromFile(cnf *Config) error {
	yamlData, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", p.path, err)
	}

	if err = yaml.Unmarshal(yamlData, cnf); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

func (p *FileConfigProvider) Validate(cnf *Config) error {
	err := p.validate.Struct(cnf)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Tag() == "required" {
			msgs = append(msgs, field+" is required")
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed on %s=%s", field, fe.Tag(), fe.Param()))
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "weather-router",
			Version: "1.0.0",
			Env:     "development",
		},
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10,
			WriteTimeout: 10,
			IdleTimeout:  120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Dir:                 ".weather-cache",
			CoordinatePrecision: 4,
			LocationPrecision:   2,
			LocationTTL:         30 * 24 * time.Hour,
			StaleRetention:      7 * 24 * time.Hour,
			OpenTimeout:         5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Ceiling: 5 * time.Minute,
		},
		Weather: WeatherConfig{
			Fallback:  "global",
			UserAgent: "weather-router/1.0",
			Regions:   DefaultRegions(),
			APIs:      DefaultAPIs(),
		},
		Observe: ObserveConfig{
			ReportInterval: 15 * time.Minute,
			PruneInterval:  time.Hour,
		},
		Summary: SummaryConfig{
			Timezone: "UTC",
		},
	}
}

// DefaultRegions is the ordered routing table; the first matching box wins.
func DefaultRegions() []RegionConfig {
	return []RegionConfig{
		{Name: "finland", Provider: "nordic", LatMin: 59.5, LatMax: 70.1, LonMin: 19.0, LonMax: 31.6},
		{Name: "madeira", Provider: "atlantic", LatMin: 32.3, LatMax: 33.2, LonMin: -17.4, LonMax: -16.2},
		{Name: "azores", Provider: "atlantic", LatMin: 36.8, LatMax: 39.8, LonMin: -31.5, LonMax: -24.9},
		{Name: "portugal", Provider: "atlantic", LatMin: 36.9, LatMax: 42.2, LonMin: -9.6, LonMax: -6.2},
		{Name: "canary", Provider: "iberian", LatMin: 27.5, LatMax: 29.5, LonMin: -18.2, LonMax: -13.3},
		{Name: "spain", Provider: "iberian", LatMin: 35.9, LatMax: 43.8, LonMin: -9.4, LonMax: 4.4},
	}
}

// DefaultAPIs configures every provider the default regions route to. The iberian provider
// still needs an API key before it can serve.
func DefaultAPIs() []WeatherAPIConfig {
	return []WeatherAPIConfig{
		{Name: "nordic", BaseURL: "https://opendata.fmi.fi/wfs", Timeout: 10, MinInterval: time.Second, MaxRetries: 2},
		{Name: "iberian", BaseURL: "https://opendata.aemet.es/opendata", Timeout: 15, MinInterval: 2 * time.Second, MaxRetries: 2},
		{Name: "atlantic", BaseURL: "https://api.ipma.pt/open-data", Timeout: 10, MinInterval: time.Second, MaxRetries: 2},
		{Name: "global", BaseURL: "https://api.met.no/weatherapi/locationforecast/2.0", Timeout: 10, MinInterval: time.Second, MaxRetries: 2},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) GetWeatherAPIByName(name string) (*WeatherAPIConfig, bool) {
	for i := range c.Weather.APIs {
		if c.Weather.APIs[i].Name == name {
			return &c.Weather.APIs[i], true
		}
	}
	return nil, false
}

func (c *Config) GetWeatherAPIs() []WeatherAPIConfig {
	return c.Weather.APIs
}
