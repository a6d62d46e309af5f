package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "test-app",
			Version: "1.0.0",
			Env:     "development",
		},
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10,
			WriteTimeout: 10,
			IdleTimeout:  120,
		},
		Cache: CacheConfig{
			Dir:                 "/tmp/cache",
			CoordinatePrecision: 4,
		},
		Weather: WeatherConfig{
			Fallback: "global",
			Regions:  DefaultRegions(),
			APIs: []WeatherAPIConfig{
				{
					Name:    "global",
					Timeout: 30,
				},
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestNewConfig(t *testing.T) {
	// Test with default values (without config file)
	provider := NewFileConfigProvider("nonexistent.yaml")
	config, err := NewConfigWithProvider(provider)
	require.NoError(t, err)
	assert.NotNil(t, config)

	assert.Equal(t, "weather-router", config.App.Name)
	assert.Equal(t, "1.0.0", config.App.Version)
	assert.Equal(t, "development", config.App.Env)
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, 10, config.Server.ReadTimeout)
	assert.Equal(t, 120, config.Server.IdleTimeout)
	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, 4, config.Cache.CoordinatePrecision)
	assert.Equal(t, 30*24*time.Hour, config.Cache.LocationTTL)
	assert.Equal(t, 5*time.Minute, config.RateLimit.Ceiling)
	assert.Equal(t, "global", config.Weather.Fallback)
	assert.Len(t, config.Weather.Regions, 6)

	// Without config file every routed provider is configured
	require.Len(t, config.Weather.APIs, 4)
	names := make(map[string]bool)
	for _, api := range config.Weather.APIs {
		names[api.Name] = true
	}
	for _, region := range config.Weather.Regions {
		assert.True(t, names[region.Provider], region.Name)
	}
	assert.Equal(t, 2*time.Second, config.Weather.APIs[1].MinInterval)
}

func TestConfigWithEnvironmentVariables(t *testing.T) {
	t.Setenv("APP_NAME", "test-app")
	t.Setenv("APP_VERSION", "2.0.0")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CACHE_DIR", "/var/cache/weather")
	t.Setenv("RATE_LIMIT_CEILING", "2m")
	t.Setenv("OBSERVE_SENTRY_DSN", "https://key@sentry.example.com/1")

	provider := NewFileConfigProvider("nonexistent.yaml")
	config, err := NewConfigWithProvider(provider)
	require.NoError(t, err)

	assert.Equal(t, "test-app", config.App.Name)
	assert.Equal(t, "2.0.0", config.App.Version)
	assert.Equal(t, "production", config.App.Env)
	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "/var/cache/weather", config.Cache.Dir)
	assert.Equal(t, 2*time.Minute, config.RateLimit.Ceiling)
	assert.Equal(t, "https://key@sentry.example.com/1", config.Observe.SentryDSN)
}

func TestConfigValidation(t *testing.T) {
	provider := NewFileConfigProvider("config/config.yaml")

	err := provider.Validate(validConfig())
	assert.NoError(t, err)

	// Test invalid config - missing app name
	invalidConfig := validConfig()
	invalidConfig.App.Name = ""

	err = provider.Validate(invalidConfig)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "app.name is required")

	// Inverted bounding box
	invalidConfig = validConfig()
	invalidConfig.Weather.Regions[0].LatMax = 10

	err = provider.Validate(invalidConfig)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "weather.regions[0].lat_max")
}

func TestConfigHelperMethods(t *testing.T) {
	config := &Config{
		App: AppConfig{
			Env: "development",
		},
		Weather: WeatherConfig{
			APIs: []WeatherAPIConfig{
				{
					Name:    "nordic",
					Timeout: 30,
				},
				{
					Name:    "iberian",
					APIKey:  "test-key",
					Timeout: 30,
				},
			},
		},
	}

	assert.True(t, config.IsDevelopment())
	assert.False(t, config.IsProduction())

	api, found := config.GetWeatherAPIByName("iberian")
	assert.True(t, found)
	assert.Equal(t, "test-key", api.APIKey)

	api, found = config.GetWeatherAPIByName("nonexistent")
	assert.False(t, found)
	assert.Nil(t, api)

	apis := config.GetWeatherAPIs()
	assert.Len(t, apis, 2)
	assert.Equal(t, "nordic", apis[0].Name)
	assert.Equal(t, "iberian", apis[1].Name)
}

func TestFileConfigProvider_LoadFromFile(t *testing.T) {
	provider := NewFileConfigProvider("nonexistent.yaml")
	config := &Config{}

	// Test loading from non-existent file (should not error)
	err := provider.loadFromFile(config)
	assert.NoError(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unclosed"), 0o600))

	err = NewFileConfigProvider(path).loadFromFile(config)
	assert.Error(t, err)
}

func TestFileConfigProvider_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv("IBERIAN_API_KEY", "secret")

	config, err := NewConfigWithProvider(NewFileConfigProvider("config.yaml"))
	require.NoError(t, err)

	api, found := config.GetWeatherAPIByName("iberian")
	require.True(t, found)
	assert.Equal(t, "secret", api.APIKey)
}

func TestNewConfigWithProvider(t *testing.T) {
	mockProvider := &MockConfigProvider{config: validConfig()}

	config, err := NewConfigWithProvider(mockProvider)
	require.NoError(t, err)
	assert.Equal(t, "test-app", config.App.Name)
}

func TestConfigFileLoading(t *testing.T) {
	t.Setenv("CONFIG_PATH", "config.yaml")

	config, err := NewConfig()
	require.NoError(t, err)

	assert.Len(t, config.Weather.APIs, 4)
	assert.Equal(t, "nordic", config.Weather.APIs[0].Name)
	assert.Equal(t, "global", config.Weather.APIs[3].Name)
	assert.Equal(t, 2*time.Second, config.Weather.APIs[1].MinInterval)
	assert.Equal(t, "Europe/Helsinki", config.Summary.Timezone)
	assert.Len(t, config.Weather.Regions, 6)
	assert.Equal(t, "finland", config.Weather.Regions[0].Name)
}

// MockConfigProvider for testing
type MockConfigProvider struct {
	config *Config
	err    error
}

func (m *MockConfigProvider) Load() (*Config, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.config, nil
}

func (m *MockConfigProvider) Validate(config *Config) error {
	return nil
}
