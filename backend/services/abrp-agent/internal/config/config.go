package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	libconfig "abrplink/backend/libs/config"
	"abrplink/backend/services/abrp-agent/internal/clients"
	"abrplink/backend/services/abrp-agent/internal/policy"
)

// ABRP configures the remote endpoint.
type ABRP struct {
	URL            string `yaml:"url" env:"ABRP_URL"`
	APIKey         string `yaml:"apiKey" env:"ABRP_API_KEY"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" env:"ABRP_TIMEOUT_SECONDS"`
}

// Sampling configures the scheduler tick rates and smoothing buffer.
type Sampling struct {
	LowRateSeconds  int `yaml:"lowRateSeconds" env:"ABRP_LOW_RATE_SECONDS"`
	HighRateSeconds int `yaml:"highRateSeconds" env:"ABRP_HIGH_RATE_SECONDS"`
	BufferSize      int `yaml:"bufferSize" env:"ABRP_BUFFER_SIZE"`
}

// Redis is shared by the redis registry and config store backends.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// Registry selects where vehicle metrics are read from.
type Registry struct {
	Backend string `yaml:"backend" env:"ABRP_REGISTRY_BACKEND"`
	HashKey string `yaml:"hashKey" env:"ABRP_REGISTRY_HASH_KEY"`
	// Static seeds the memory backend, used on bench setups without a vehicle.
	Static map[string]string `yaml:"static" env:"-"`
}

// ConfigStore selects where operator settings persist.
type ConfigStore struct {
	Backend string `yaml:"backend" env:"ABRP_CONFIG_BACKEND"`
	DSN     string `yaml:"dsn" env:"ABRP_CONFIG_DSN"`
	Table   string `yaml:"table" env:"ABRP_CONFIG_TABLE"`
}

// Control configures the operator API.
type Control struct {
	Port            string `yaml:"port" env:"ABRP_HTTP_PORT"`
	JWTSecret       string `yaml:"jwtSecret" env:"ABRP_JWT_SECRET"`
	PasswordHash    string `yaml:"passwordHash" env:"ABRP_PASSWORD_HASH"`
	TokenTTLMinutes int    `yaml:"tokenTTLMinutes" env:"ABRP_TOKEN_TTL_MINUTES"`
}

// Agent configures boot behavior.
type Agent struct {
	Autostart bool `yaml:"autostart" env:"ABRP_AUTOSTART"`
}

// Config represents service configuration loaded from YAML/env.
type Config struct {
	ABRP        ABRP          `yaml:"abrp"`
	Sampling    Sampling      `yaml:"sampling"`
	Policy      policy.Params `yaml:"policy" env:"ABRP_POLICY"`
	Redis       Redis         `yaml:"redis"`
	Registry    Registry      `yaml:"registry"`
	ConfigStore ConfigStore   `yaml:"configStore"`
	Control     Control       `yaml:"control"`
	Agent       Agent         `yaml:"agent"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		ABRP:        ABRP{URL: clients.DefaultABRPURL, TimeoutSeconds: 10},
		Sampling:    Sampling{LowRateSeconds: 10, HighRateSeconds: 1, BufferSize: 120},
		Policy:      policy.DefaultParams(),
		Redis:       Redis{Addr: "localhost:6379"},
		Registry:    Registry{Backend: "redis", HashKey: "vehicle:metrics"},
		ConfigStore: ConfigStore{Backend: "memory", Table: "config_values"},
		Control:     Control{Port: "8090", TokenTTLMinutes: 60},
	}
}

// Load reads configuration using the shared config loader.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom reads the YAML file at path (optional) and the environment.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()
	if err := libconfig.LoadConfigFrom(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills derived defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ABRP.URL) == "" {
		c.ABRP.URL = clients.DefaultABRPURL
	}
	if c.ABRP.APIKey == "" {
		return errors.New("config: abrp api key is required")
	}
	if c.Control.JWTSecret == "" {
		return errors.New("config: control jwt secret is required")
	}
	if c.Sampling.LowRateSeconds <= 0 || c.Sampling.HighRateSeconds <= 0 {
		return errors.New("config: sampling rates must be positive")
	}
	if c.Sampling.HighRateSeconds > c.Sampling.LowRateSeconds {
		return errors.New("config: high-rate sampling must not be slower than the low rate")
	}

	switch c.Registry.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: redis addr is required for the redis registry")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown registry backend %q", c.Registry.Backend)
	}

	if c.ConfigStore.Backend == "postgres" && c.ConfigStore.DSN == "" {
		return errors.New("config: config store dsn is required for postgres")
	}
	if c.ConfigStore.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("config: redis addr is required for the redis config store")
	}

	c.Policy = c.Policy.WithDefaults()
	if c.Control.TokenTTLMinutes <= 0 {
		c.Control.TokenTTLMinutes = 60
	}
	return nil
}

// HTTPAddress ensures we always return host:port formatted string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.Control.Port)
	if port == "" {
		port = "8090"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// TokenTTL converts configured expiry to duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Control.TokenTTLMinutes) * time.Minute
}

// RequestTimeout is the per-request deadline for ABRP calls.
func (c *Config) RequestTimeout() time.Duration {
	if c.ABRP.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ABRP.TimeoutSeconds) * time.Second
}

// Rates returns the scheduler tick intervals.
func (c *Config) Rates() (low, high time.Duration) {
	return time.Duration(c.Sampling.LowRateSeconds) * time.Second,
		time.Duration(c.Sampling.HighRateSeconds) * time.Second
}
