// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ConfirmationTimer = "timer"
	ConfirmationPoll  = "poll"
)

type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFile     string `mapstructure:"LOG_FILE"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	ShopAPIURL     string        `mapstructure:"SHOP_API_URL"`
	SessionCookie  string        `mapstructure:"SESSION_COOKIE"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	// ShopAPITimezone is the IANA zone used for shop timestamps sent without an offset.
	ShopAPITimezone string `mapstructure:"SHOP_API_TIMEZONE"`

	PixConfirmDelay  time.Duration `mapstructure:"PIX_CONFIRM_DELAY"`
	PixExpiry        time.Duration `mapstructure:"PIX_EXPIRY"`
	CardSettleDelay  time.Duration `mapstructure:"CARD_SETTLE_DELAY"`
	NoticeWindow     time.Duration `mapstructure:"NOTICE_WINDOW"`
	ConfirmationMode string        `mapstructure:"CONFIRMATION_MODE"`
	PollInterval     time.Duration `mapstructure:"POLL_INTERVAL"`
}

var defaults = map[string]any{
	"SERVICE_NAME":      "snackshop",
	"ENV":               "dev",
	"LOG_LEVEL":         "info",
	"LOG_FILE":          "",
	"HTTP_ADDR":         ":8080",
	"SHOP_API_URL":      "http://localhost:8080",
	"SESSION_COOKIE":    "",
	"REQUEST_TIMEOUT":   "10s",
	"SHOP_API_TIMEZONE": "Local",
	"PIX_CONFIRM_DELAY": "10s",
	"PIX_EXPIRY":        "30m",
	"CARD_SETTLE_DELAY": "2s",
	"NOTICE_WINDOW":     "5s",
	"CONFIRMATION_MODE": ConfirmationTimer,
	"POLL_INTERVAL":     "2s",
}

// Load reads settings from the environment, overlaying file when it is not empty.
// Environment variables win over the file.
func Load(file string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	c.ConfirmationMode = strings.ToLower(strings.TrimSpace(c.ConfirmationMode))
	if c.ConfirmationMode != ConfirmationTimer && c.ConfirmationMode != ConfirmationPoll {
		errs = append(errs, fmt.Errorf("CONFIRMATION_MODE must be %q or %q, got %q", ConfirmationTimer, ConfirmationPoll, c.ConfirmationMode))
	}
	if _, err := c.ShopAPILocation(); err != nil {
		errs = append(errs, fmt.Errorf("SHOP_API_TIMEZONE: %w", err))
	}
	if c.ShopAPIURL == "" {
		errs = append(errs, errors.New("SHOP_API_URL is required"))
	}
	for name, d := range map[string]time.Duration{
		"REQUEST_TIMEOUT":   c.RequestTimeout,
		"PIX_CONFIRM_DELAY": c.PixConfirmDelay,
		"PIX_EXPIRY":        c.PixExpiry,
		"NOTICE_WINDOW":     c.NoticeWindow,
		"POLL_INTERVAL":     c.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.CardSettleDelay < 0 {
		errs = append(errs, errors.New("CARD_SETTLE_DELAY must not be negative"))
	}
	return errors.Join(errs...)
}

// ShopAPILocation resolves ShopAPITimezone; empty means the host's local zone.
func (c *Config) ShopAPILocation() (*time.Location, error) {
	if c.ShopAPITimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.ShopAPITimezone)
}
