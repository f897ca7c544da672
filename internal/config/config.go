// Package config loads daemon settings from defaults, an optional YAML file,
// an optional .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/watercontrol/internal/gpio"
	"github.com/sweeney/watercontrol/internal/store"
)

// Environment variable names. MQTT_* and NAME/IDENTIFIER match the .env
// files already deployed on the controllers.
const (
	EnvBroker     = "MQTT_BROKER"
	EnvPort       = "MQTT_PORT"
	EnvUsername   = "MQTT_USERNAME"
	EnvPassword   = "MQTT_PASSWORD"
	EnvName       = "NAME"
	EnvIdentifier = "IDENTIFIER"
	EnvDatabase   = "WATERCONTROL_DB"
)

// Pins selects the GPIO lines (BCM numbering).
type Pins struct {
	Chip      string        `yaml:"chip"`
	Main      int           `yaml:"main"`
	Automatic int           `yaml:"automatic"`
	Sensor    int           `yaml:"sensor"`
	Debounce  time.Duration `yaml:"debounce"`
}

// Config contains all daemon settings.
type Config struct {
	Broker     string `yaml:"broker"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	Identifier string `yaml:"identifier"`

	Database string `yaml:"database"`

	Period        time.Duration `yaml:"period"`
	BackoffFactor int           `yaml:"backoff_factor"`
	Heartbeat     time.Duration `yaml:"heartbeat"`

	HTTPAddr string `yaml:"http"`
	Syslog   bool   `yaml:"syslog"`

	Pins Pins `yaml:"pins"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Broker:        "tcp://localhost:1883",
		Name:          "Water Control",
		Identifier:    "water_control",
		Database:      store.DefaultPath,
		Period:        time.Second,
		BackoffFactor: 5,
		Heartbeat:     15 * time.Minute,
		HTTPAddr:      ":80",
		Pins: Pins{
			Chip:      gpio.DefaultChip,
			Main:      gpio.DefaultPinMain,
			Automatic: gpio.DefaultPinAutomatic,
			Sensor:    gpio.DefaultPinSensor,
			Debounce:  gpio.DefaultDebounce,
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (if path is
// non-empty), then the .env file at envFile (if it exists) and the process
// environment. Values already present in the environment win over the .env
// file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if host := os.Getenv(EnvBroker); host != "" {
		cfg.Broker = brokerURL(host, os.Getenv(EnvPort))
	}
	if v, ok := os.LookupEnv(EnvUsername); ok {
		cfg.Username = v
	}
	if v, ok := os.LookupEnv(EnvPassword); ok {
		cfg.Password = v
	}
	if v := os.Getenv(EnvName); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv(EnvIdentifier); v != "" {
		cfg.Identifier = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		cfg.Database = v
	}
}

// brokerURL turns MQTT_BROKER/MQTT_PORT into a paho broker URL. A host that
// already carries a scheme is used as is.
func brokerURL(host, port string) string {
	if strings.Contains(host, "://") {
		return host
	}
	if port == "" {
		port = "1883"
	}
	return "tcp://" + host + ":" + port
}

// Backoff returns the wait used after a failed tick.
func (c Config) Backoff() time.Duration {
	return c.Period * time.Duration(c.BackoffFactor)
}

// Validate reports settings the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Period <= 0 {
		errs = append(errs, fmt.Errorf("period must be positive, got %v", c.Period))
	}
	if c.BackoffFactor <= 0 {
		errs = append(errs, fmt.Errorf("backoff_factor must be positive, got %d", c.BackoffFactor))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.Identifier == "" {
		errs = append(errs, errors.New("identifier must not be empty"))
	}
	if c.Broker == "" {
		errs = append(errs, errors.New("broker must not be empty"))
	}
	p := c.Pins
	if p.Main == p.Automatic || p.Main == p.Sensor || p.Automatic == p.Sensor {
		errs = append(errs, fmt.Errorf("pins must be distinct, got main=%d automatic=%d sensor=%d", p.Main, p.Automatic, p.Sensor))
	}
	return errors.Join(errs...)
}
