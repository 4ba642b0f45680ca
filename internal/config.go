package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Client        ClientConfig        `mapstructure:"client"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	SessionSecret string `mapstructure:"session_secret" validate:"required,min=32"`
}

// GatewayConfig holds the payment gateway integration settings. TestMode
// gates the relaxed acceptance policies (fixed test amount, small-amount
// demo ceiling); with TestMode off only an exact total match is accepted.
type GatewayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ClientID       string        `mapstructure:"client_id"`
	APIKey         string        `mapstructure:"api_key"`
	ChecksumSecret string        `mapstructure:"checksum_secret"`
	ReturnURL      string        `mapstructure:"return_url"`
	CancelURL      string        `mapstructure:"cancel_url"`
	MinAmount      int64         `mapstructure:"min_amount"`
	TestMode       bool          `mapstructure:"test_mode"`
	TestAmount     int64         `mapstructure:"test_amount"`
	DemoCeiling    int64         `mapstructure:"demo_ceiling"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type RealtimeConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// ClientConfig tunes the mobile-side payment orchestration defaults that
// the server hands out (QR validity window, status poll cadence).
type ClientConfig struct {
	QRTTL        time.Duration `mapstructure:"qr_ttl"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 characters")
	}
	return nil
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.ChecksumSecret == "" {
		return errors.New("checksum_secret is required")
	}
	if c.MinAmount < 0 {
		return errors.New("min_amount cannot be negative")
	}
	if c.TestMode && c.TestAmount <= 0 {
		return errors.New("test_amount must be positive when test_mode is enabled")
	}
	return nil
}

// QRTTLOrDefault falls back to the 15 minute checkout window the gateway
// enforces on its side.
func (c *ClientConfig) QRTTLOrDefault() time.Duration {
	if c.QRTTL <= 0 {
		return 15 * time.Minute
	}
	return c.QRTTL
}

func (c *ClientConfig) PollIntervalOrDefault() time.Duration {
	if c.PollInterval <= 0 {
		return 5 * time.Second
	}
	return c.PollInterval
}
