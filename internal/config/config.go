package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "PVS"

	// MinPollInterval keeps load on the gateway bounded.
	MinPollInterval     = 60 * time.Second
	DefaultPollInterval = 120 * time.Second
)

// Config is the full service configuration.
type Config struct {
	Port     string        `mapstructure:"port"`
	LogLevel string        `mapstructure:"log_level"`
	DB       DBConfig      `mapstructure:"db"`
	PVS      PVSConfig     `mapstructure:"pvs"`
	Naming   NamingConfig  `mapstructure:"naming"`
	Auth     AuthConfig    `mapstructure:"auth"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// PVSConfig describes the monitored gateway and how it is polled.
type PVSConfig struct {
	Host               string        `mapstructure:"host"`
	SerialSuffix       string        `mapstructure:"serial_suffix"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout"` // 0 means the poll interval
	SetupRetryInterval time.Duration `mapstructure:"setup_retry_interval"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryInitial       time.Duration `mapstructure:"retry_initial_interval"`
	RetryMax           time.Duration `mapstructure:"retry_max_interval"`
}

// NamingConfig only affects presentation of device names.
type NamingConfig struct {
	Descriptive  bool `mapstructure:"descriptive"`
	ProductNames bool `mapstructure:"product_names"`
}

type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         int           `mapstructure:"qos"`
	KeepAlive   time.Duration `mapstructure:"keep_alive"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db.path", "pvs_monitor.db")

	v.SetDefault("pvs.host", "")
	v.SetDefault("pvs.serial_suffix", "")
	v.SetDefault("pvs.request_timeout", 30*time.Second)
	v.SetDefault("pvs.session_ttl", time.Duration(0))
	v.SetDefault("pvs.poll_interval", DefaultPollInterval)
	v.SetDefault("pvs.poll_timeout", time.Duration(0))
	v.SetDefault("pvs.setup_retry_interval", 30*time.Second)
	v.SetDefault("pvs.retry_attempts", 3)
	v.SetDefault("pvs.retry_initial_interval", 2*time.Second)
	v.SetDefault("pvs.retry_max_interval", 10*time.Second)

	v.SetDefault("naming.descriptive", true)
	v.SetDefault("naming.product_names", false)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "pvs")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keep_alive", 30*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the YAML file at path (optional when empty or missing), applies PVS_* env
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %q: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.PVS.Host = strings.TrimSpace(cfg.PVS.Host)
	cfg.PVS.SerialSuffix = strings.TrimSpace(cfg.PVS.SerialSuffix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late or overload the gateway.
func (c *Config) Validate() error {
	var errs []error
	if !ValidHost(c.PVS.Host) {
		errs = append(errs, fmt.Errorf("pvs.host %q is not a valid IP address or hostname", c.PVS.Host))
	}
	if c.PVS.PollInterval < MinPollInterval {
		errs = append(errs, fmt.Errorf("pvs.poll_interval must be at least %s, got %s", MinPollInterval, c.PVS.PollInterval))
	}
	if c.PVS.PollTimeout < 0 || (c.PVS.PollTimeout > 0 && c.PVS.PollTimeout < c.PVS.RequestTimeout) {
		errs = append(errs, fmt.Errorf("pvs.poll_timeout must be 0 or at least the request timeout, got %s", c.PVS.PollTimeout))
	}
	if c.PVS.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("pvs.retry_attempts must be at least 1, got %d", c.PVS.RetryAttempts))
	}
	if c.PVS.RequestTimeout <= 0 {
		errs = append(errs, errors.New("pvs.request_timeout must be positive"))
	}
	if c.PVS.SerialSuffix != "" && len(c.PVS.SerialSuffix) != 5 {
		errs = append(errs, fmt.Errorf("pvs.serial_suffix must be 5 characters, got %d", len(c.PVS.SerialSuffix)))
	}
	if c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signing_key must be set"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker must be set when mqtt is enabled"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	return errors.Join(errs...)
}

var (
	ipv4Re  = regexp.MustCompile(`^(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)$`)
	labelRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
)

// ValidHost accepts an IPv4 address or an RFC 1123 hostname, optionally with a port.
func ValidHost(host string) bool {
	host = strings.TrimSpace(host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return false
		}
		host = h
	}
	if host == "" || len(host) > 253 {
		return false
	}
	if ipv4Re.MatchString(host) {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if !labelRe.MatchString(label) {
			return false
		}
	}
	return true
}
