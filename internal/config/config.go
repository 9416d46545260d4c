package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/tariff"
)

// Sample sources
const (
	SourceInflux = "influx"
	SourceSQLite = "sqlite"
)

// Live transports
const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
)

// Config holds the application configuration
type Config struct {
	Source   string         `yaml:"source,omitempty"` // influx (default) or sqlite
	Influx   InfluxConfig   `yaml:"influx"`
	MQTT     MQTTConfig     `yaml:"mqtt,omitempty"`
	Kafka    KafkaConfig    `yaml:"kafka,omitempty"`
	Live     LiveConfig     `yaml:"live,omitempty"`
	Tariff   TariffConfig   `yaml:"tariff,omitempty"`
	Currency CurrencyConfig `yaml:"currency,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// InfluxConfig holds InfluxDB v2 connection settings
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement,omitempty"` // default: sensor_data
}

// MQTTConfig holds MQTT broker settings for the live feed and publisher
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port or a full URL like ws://localhost:8083/mqtt
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"` // random when empty
	Topic       string `yaml:"topic,omitempty"`     // live sensor topic
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// KafkaConfig holds Kafka settings for the live feed
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id,omitempty"`
}

// LiveConfig configures live mode
type LiveConfig struct {
	Transport  string `yaml:"transport,omitempty"` // mqtt (default) or kafka
	BufferSize int    `yaml:"buffer_size,omitempty"`
	Enabled    bool   `yaml:"enabled,omitempty"` // live mode on at startup
}

// TierConfig is one band of the rate schedule. An omitted upper bound means
// the tier is unbounded.
type TierConfig struct {
	Lower float64  `yaml:"lower"`
	Upper *float64 `yaml:"upper,omitempty"`
	Rate  float64  `yaml:"rate"`
}

// TariffConfig holds the progressive rate schedule
type TariffConfig struct {
	Currency string       `yaml:"currency,omitempty"`
	Tiers    []TierConfig `yaml:"tiers,omitempty"`
}

// CurrencyConfig configures display currency and exchange rates
type CurrencyConfig struct {
	Display         string             `yaml:"display,omitempty"`
	RatesURL        string             `yaml:"rates_url,omitempty"`
	RefreshInterval time.Duration      `yaml:"refresh_interval,omitempty"`
	Fallback        map[string]float64 `yaml:"fallback,omitempty"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr         string        `yaml:"addr,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level   string `yaml:"level,omitempty"`
	Console bool   `yaml:"console,omitempty"`
}

// Load reads the config file and applies environment overrides
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing file means defaults plus environment
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyEnv()
	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// ApplyEnv overrides InfluxDB settings from INFLUX_* environment variables
func (c *Config) ApplyEnv() {
	c.Influx.URL = GetEnv("INFLUX_URL", c.Influx.URL)
	c.Influx.Token = GetEnv("INFLUX_TOKEN", c.Influx.Token)
	c.Influx.Org = GetEnv("INFLUX_ORG", c.Influx.Org)
	c.Influx.Bucket = GetEnv("INFLUX_BUCKET", c.Influx.Bucket)
}

// GetEnv returns the value of key, or defaultVal when unset
func GetEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

// GetSource returns the sample source, defaulting to influx
func (c *Config) GetSource() string {
	if c.Source == "" {
		return SourceInflux
	}
	return strings.ToLower(c.Source)
}

// GetMeasurement returns the InfluxDB measurement name
func (c *Config) GetMeasurement() string {
	if c.Influx.Measurement == "" {
		return "sensor_data"
	}
	return c.Influx.Measurement
}

// GetLiveTopic returns the MQTT topic carrying live readings
func (c *Config) GetLiveTopic() string {
	if c.MQTT.Topic == "" {
		return "sensor/data"
	}
	return c.MQTT.Topic
}

// GetTopicPrefix returns the prefix for published cost summaries
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "ampdash"
	}
	return c.MQTT.TopicPrefix
}

// GetLiveTransport returns the live feed transport, defaulting to mqtt
func (c *Config) GetLiveTransport() string {
	if c.Live.Transport == "" {
		return TransportMQTT
	}
	return strings.ToLower(c.Live.Transport)
}

// GetBufferSize returns the live buffer size with a default of 100
func (c *Config) GetBufferSize() int {
	if c.Live.BufferSize <= 0 {
		return 100
	}
	return c.Live.BufferSize
}

// GetDisplayCurrency returns the display currency, defaulting to the tariff currency
func (c *Config) GetDisplayCurrency() string {
	if c.Currency.Display != "" {
		return strings.ToUpper(c.Currency.Display)
	}
	return c.GetTariffCurrency()
}

// GetTariffCurrency returns the base currency of the rate schedule
func (c *Config) GetTariffCurrency() string {
	if c.Tariff.Currency == "" {
		return "THB"
	}
	return strings.ToUpper(c.Tariff.Currency)
}

// GetRatesURL returns the exchange-rate endpoint
func (c *Config) GetRatesURL() string {
	if c.Currency.RatesURL == "" {
		return currency.DefaultRatesURL
	}
	return c.Currency.RatesURL
}

// GetRefreshInterval returns the exchange-rate refresh interval (default hourly)
func (c *Config) GetRefreshInterval() time.Duration {
	if c.Currency.RefreshInterval <= 0 {
		return time.Hour
	}
	return c.Currency.RefreshInterval
}

// GetFallbackRates returns the rate table served before the first fetch
func (c *Config) GetFallbackRates() currency.Table {
	if len(c.Currency.Fallback) == 0 {
		return currency.DefaultTable()
	}
	rates := make(map[string]float64, len(c.Currency.Fallback))
	for code, r := range c.Currency.Fallback {
		rates[strings.ToUpper(code)] = r
	}
	return currency.Table{Base: c.GetTariffCurrency(), Rates: rates}
}

// GetAddr returns the HTTP listen address
func (c *Config) GetAddr() string {
	if c.Server.Addr == "" {
		return ":8080"
	}
	return c.Server.Addr
}

// Schedule builds and validates the rate schedule, falling back to the
// default residential tariff when no tiers are configured.
func (t TariffConfig) Schedule() (tariff.Schedule, error) {
	if len(t.Tiers) == 0 {
		s := tariff.DefaultSchedule()
		if t.Currency != "" {
			s.Currency = strings.ToUpper(t.Currency)
		}
		return s, nil
	}

	s := tariff.Schedule{Currency: "THB"}
	if t.Currency != "" {
		s.Currency = strings.ToUpper(t.Currency)
	}
	for _, tc := range t.Tiers {
		upper := math.Inf(1)
		if tc.Upper != nil {
			upper = *tc.Upper
		}
		s.Tiers = append(s.Tiers, tariff.Tier{Lower: tc.Lower, Upper: upper, Rate: tc.Rate})
	}

	if err := s.Validate(); err != nil {
		return tariff.Schedule{}, fmt.Errorf("tariff config: %w", err)
	}
	return s, nil
}
