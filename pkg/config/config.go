package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

// Config holds the configuration for the RPiLight agent
type Config struct {
	// MQTT configuration, disabled when the broker is empty
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration, disabled when the host is empty
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string

	// Light agent configuration
	ConfigFile      string
	ScheduleFile    string
	Preview         bool
	TelemetryRateHz float64
	StatusTTLSec    int
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:      "",
		MQTTPort:        1883,
		MQTTUser:        "",
		MQTTPassword:    "",
		MQTTClientID:    "",
		RedisHost:       "",
		RedisPort:       6379,
		RedisPassword:   "",
		RedisDB:         0,
		ServiceName:     "rpilight",
		HealthPort:      8080,
		LogLevel:        "info",
		ConfigFile:      "config.yml",
		ScheduleFile:    "schedule.yml",
		Preview:         false,
		TelemetryRateHz: 2,
		StatusTTLSec:    300,
	}
}

// LoadFromEnv loads configuration from environment variables with RPILIGHT_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := os.Getenv("RPILIGHT_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("RPILIGHT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("RPILIGHT_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("RPILIGHT_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("RPILIGHT_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("RPILIGHT_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("RPILIGHT_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("RPILIGHT_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("RPILIGHT_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Service configuration
	if v := os.Getenv("RPILIGHT_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("RPILIGHT_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("RPILIGHT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Light agent configuration
	if v := os.Getenv("RPILIGHT_CONFIG_FILE"); v != "" {
		c.ConfigFile = v
	}
	if v := os.Getenv("RPILIGHT_SCHEDULE_FILE"); v != "" {
		c.ScheduleFile = v
	}
	if v := os.Getenv("RPILIGHT_PREVIEW"); v != "" {
		if preview, err := strconv.ParseBool(v); err == nil {
			c.Preview = preview
		}
	}
	if v := os.Getenv("RPILIGHT_TELEMETRY_RATE_HZ"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			c.TelemetryRateHz = rate
		}
	}
	if v := os.Getenv("RPILIGHT_STATUS_TTL_SEC"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			c.StatusTTLSec = ttl
		}
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	c.RegisterFlags(pflag.CommandLine)
	pflag.Parse()
}

// RegisterFlags binds every config value to a flag on fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname (empty disables MQTT)")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname (empty disables Redis)")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Light agent flags
	fs.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "Hardware configuration file (YAML or JSON)")
	fs.StringVarP(&c.ScheduleFile, "schedule", "s", c.ScheduleFile, "Schedule file (YAML or JSON)")
	fs.BoolVar(&c.Preview, "preview", c.Preview, "Play the whole schedule in one minute and exit")
	fs.Float64Var(&c.TelemetryRateHz, "telemetry-rate", c.TelemetryRateHz, "Maximum channel telemetry publishes per second")
	fs.IntVar(&c.StatusTTLSec, "status-ttl", c.StatusTTLSec, "Redis status expiry in seconds")
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker != "" && (c.MQTTPort <= 0 || c.MQTTPort > 65535) {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost != "" && (c.RedisPort <= 0 || c.RedisPort > 65535) {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.ConfigFile == "" {
		return fmt.Errorf("Hardware configuration file is required")
	}
	if c.ScheduleFile == "" {
		return fmt.Errorf("Schedule file is required")
	}
	if c.TelemetryRateHz <= 0 {
		return fmt.Errorf("Telemetry rate must be positive")
	}
	if c.StatusTTLSec <= 0 {
		return fmt.Errorf("Status TTL must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTEnabled reports whether an MQTT broker is configured
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// RedisEnabled reports whether a Redis host is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
