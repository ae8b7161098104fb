// Package config loads and validates garage-monitor settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/garage-monitor/internal/gpio"
	"github.com/sweeney/garage-monitor/internal/logic"
)

// Config holds the daemon settings.
type Config struct {
	// Chip is the GPIO character device name.
	Chip string `yaml:"chip"`
	// PinDoor is the BCM pin of the reed switch.
	PinDoor int `yaml:"pin_door"`
	// PinLED is the BCM pin of the status LED; negative disables it.
	PinLED int `yaml:"pin_led"`
	// SampleInterval is the sensor sampling period.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// NotifyInterval is the notifier poll period.
	NotifyInterval time.Duration `yaml:"notify_interval"`
	// HTTPAddr is the status server address; empty disables it.
	HTTPAddr string `yaml:"http_addr"`
	// Broker is the MQTT broker URL; empty disables MQTT.
	Broker string `yaml:"broker"`
	// WebhookURL receives alert POSTs. GARAGE_WEBHOOK overrides it.
	WebhookURL string `yaml:"webhook_url"`
	// WebhookTimeout bounds a single delivery attempt.
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	// ClosePolicy is "clear" or "report".
	ClosePolicy string `yaml:"close_policy"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default settings file. It is optional.
	DefaultConfigFilename = "garage-monitor.yaml"

	// EnvWebhook names the environment variable holding the webhook URL.
	EnvWebhook = "GARAGE_WEBHOOK"

	DefaultSampleInterval = time.Second
	DefaultNotifyInterval = 5 * time.Second
	DefaultWebhookTimeout = 10 * time.Second
	DefaultHTTPAddr       = "0.0.0.0:8888"
)

var (
	// ErrWebhookRequired is returned when no webhook URL is configured.
	ErrWebhookRequired = errors.New("webhook URL must be provided (set " + EnvWebhook + ")")
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Chip:           gpio.DefaultChip,
		PinDoor:        gpio.DefaultPinDoor,
		PinLED:         gpio.DefaultPinLED,
		SampleInterval: DefaultSampleInterval,
		NotifyInterval: DefaultNotifyInterval,
		HTTPAddr:       DefaultHTTPAddr,
		WebhookTimeout: DefaultWebhookTimeout,
		ClosePolicy:    string(logic.ClosePolicyClear),
		LogLevel:       "info",
	}
}

// Load reads configuration from path on top of the defaults. A missing file
// at the default path is not an error; a missing explicit path is.
// GARAGE_WEBHOOK, when set, overrides the file's webhook URL.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	if v := os.Getenv(EnvWebhook); v != "" {
		cfg.WebhookURL = v
	}

	return cfg, nil
}

// Validate checks the settings and fills zero durations with defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.NotifyInterval <= 0 {
		cfg.NotifyInterval = DefaultNotifyInterval
	}
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = DefaultWebhookTimeout
	}
	if cfg.Chip == "" {
		cfg.Chip = gpio.DefaultChip
	}

	if cfg.PinDoor < 0 {
		return fmt.Errorf("invalid door pin %d", cfg.PinDoor)
	}
	if cfg.PinLED >= 0 && cfg.PinLED == cfg.PinDoor {
		return fmt.Errorf("led pin %d is the door pin", cfg.PinLED)
	}

	if _, err := logic.ParseClosePolicy(cfg.ClosePolicy); err != nil {
		return err
	}

	if cfg.WebhookURL == "" {
		return ErrWebhookRequired
	}
	u, err := url.ParseRequestURI(cfg.WebhookURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook URL: unsupported scheme %q", u.Scheme)
	}

	if cfg.Broker != "" {
		if _, err := url.Parse(cfg.Broker); err != nil {
			return fmt.Errorf("invalid broker URL: %w", err)
		}
	}

	return nil
}
