package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	Store             string        `mapstructure:"STORE"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	PredictorURL      string        `mapstructure:"PREDICTOR_URL"`
	PredictorTimeout  time.Duration `mapstructure:"PREDICTOR_TIMEOUT"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	EventStream       string        `mapstructure:"EVENT_STREAM"`
	EventStreamMaxLen int64         `mapstructure:"EVENT_STREAM_MAXLEN"`
	MQTTBrokerURL     string        `mapstructure:"MQTT_BROKER_URL"`
	MQTTTopic         string        `mapstructure:"MQTT_TOPIC"`
	MQTTClientID      string        `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername      string        `mapstructure:"MQTT_USERNAME"`
	MQTTPassword      string        `mapstructure:"MQTT_PASSWORD"`
	SimulatorEnabled  bool          `mapstructure:"SIMULATOR_ENABLED"`
	SimulatorInterval time.Duration `mapstructure:"SIMULATOR_INTERVAL"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "REQUEST_TIMEOUT",
	"PREDICTOR_URL", "PREDICTOR_TIMEOUT",
	"REDIS_URL", "EVENT_STREAM", "EVENT_STREAM_MAXLEN",
	"MQTT_BROKER_URL", "MQTT_TOPIC", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD",
	"SIMULATOR_ENABLED", "SIMULATOR_INTERVAL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE", StoreMemory)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("PREDICTOR_TIMEOUT", "5s")
	v.SetDefault("EVENT_STREAM", "icu:events")
	v.SetDefault("EVENT_STREAM_MAXLEN", 10000)
	v.SetDefault("MQTT_TOPIC", "icu/vitals/+")
	v.SetDefault("MQTT_CLIENT_ID", "icuward-server")
	v.SetDefault("SIMULATOR_ENABLED", false)
	v.SetDefault("SIMULATOR_INTERVAL", "5s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without a bearer token get admin access.")
		log.Println("WARNING: Set ENV=production and AUTH_SIGNING_KEY before deploying.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningKey decodes AUTH_SIGNING_KEY. An empty key yields nil.
func (c *Config) SigningKey() ([]byte, error) {
	if c.AuthSigningKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.AuthSigningKey)
	if err != nil {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY is not valid hex: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run. Outside development
// a signing key is required so that JWT authentication is enforced.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_SIGNING_KEY must be set outside development (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}
	if _, err := c.SigningKey(); err != nil {
		return err
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.PredictorURL != "" && c.PredictorTimeout <= 0 {
		return fmt.Errorf("PREDICTOR_TIMEOUT must be positive when PREDICTOR_URL is set")
	}
	if c.RedisURL != "" && c.EventStream == "" {
		return fmt.Errorf("EVENT_STREAM is required when REDIS_URL is set")
	}
	if c.SimulatorEnabled && c.SimulatorInterval <= 0 {
		return fmt.Errorf("SIMULATOR_INTERVAL must be positive when the simulator is enabled")
	}
	return nil
}
