// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

// Package config loads server settings from a YAML file, the environment,
// and command-line flags, in increasing precedence.
package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/tollgate/tollgate/internal/auth"
	"github.com/tollgate/tollgate/internal/logging"
	"github.com/tollgate/tollgate/internal/store"
)

// Mail transports.
const (
	MailTransportSES = "ses"
	MailTransportLog = "log"
)

// Config holds every server setting. Durations are whole seconds.
type Config struct {
	ListenPort  int    `koanf:"listen_port"`
	MetricsAddr string `koanf:"metrics_addr"`

	DatabaseURL            string `koanf:"database_url"`
	DatabaseMinConnections int    `koanf:"database_min_connections"`
	DatabaseMaxConnections int    `koanf:"database_max_connections"`
	DatabaseConnectTimeout int    `koanf:"database_connect_timeout"`
	DatabaseIdleTimeout    int    `koanf:"database_idle_timeout"`
	DatabaseMaxLifetime    int    `koanf:"database_max_lifetime"`

	RedisPrimaryURL string `koanf:"redis_primary_url"`
	RedisReaderURL  string `koanf:"redis_reader_url"`
	RedisMinIdle    int    `koanf:"redis_min_idle"`
	RedisMaxSize    int    `koanf:"redis_max_size"`

	AuthPepper       string `koanf:"auth_pepper"`
	AuthStretchCount int    `koanf:"auth_stretch_count"`

	MailDomain     string `koanf:"mail_domain"`
	MailTransport  string `koanf:"mail_transport"`
	SESEndpointURL string `koanf:"ses_endpoint_url"`
	SSMEndpointURL string `koanf:"ssm_endpoint_url"`
	SSMEnvsPath    string `koanf:"ssm_envs_path"`
	AWSProfile     string `koanf:"aws_profile"`

	// Comma-separated in the environment, a list in YAML.
	CSRFAllowSiteHosts []string `koanf:"csrf_allow_site_hosts"`
	CSRFAllowXFrom     []string `koanf:"csrf_allow_x_from"`

	PasswordResetCodeExpire  int  `koanf:"password_reset_code_expire"`
	ProvisionalSessionExpire int  `koanf:"provisional_session_expire"`
	SessionExpire            int  `koanf:"session_expire"`
	SignupRejectExistingMail bool `koanf:"signup_reject_existing_mail"`

	LogFormat string `koanf:"log_format"`
	LogColor  bool   `koanf:"log_color"`
	LogLevel  string `koanf:"log_level"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		ListenPort:               8080,
		MetricsAddr:              "127.0.0.1:9100",
		DatabaseMinConnections:   1,
		DatabaseMaxConnections:   10,
		DatabaseConnectTimeout:   30,
		DatabaseIdleTimeout:      600,
		DatabaseMaxLifetime:      1800,
		RedisMinIdle:             1,
		RedisMaxSize:             10,
		AuthStretchCount:         1000,
		MailTransport:            MailTransportSES,
		PasswordResetCodeExpire:  3600,
		ProvisionalSessionExpire: 86400,
		SessionExpire:            864000,
		LogFormat:                "json",
		LogLevel:                 "info",
	}
}

// Load layers the YAML file at path (when non-empty), the environment, and
// the flags that were set explicitly on top of Default. Environment names are
// lowercased and flag names map to keys with '-' replaced by '_'.
func Load(flags *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	cfg.CSRFAllowSiteHosts = splitList(cfg.CSRFAllowSiteHosts)
	cfg.CSRFAllowXFrom = splitList(cfg.CSRFAllowXFrom)
	return cfg, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	switch {
	case c.ListenPort < 1 || c.ListenPort > 65535:
		return invalid("listen_port", "listen_port must be between 1 and 65535, got %d", c.ListenPort)
	case c.DatabaseURL == "":
		return invalid("database_url", "database_url is required")
	case c.DatabaseMinConnections < 0:
		return invalid("database_min_connections", "database_min_connections must not be negative")
	case c.DatabaseMaxConnections < 1:
		return invalid("database_max_connections", "database_max_connections must be at least 1")
	case c.DatabaseMinConnections > c.DatabaseMaxConnections:
		return invalid("database_min_connections", "database_min_connections exceeds database_max_connections")
	case c.RedisPrimaryURL == "":
		return invalid("redis_primary_url", "redis_primary_url is required")
	case c.RedisMaxSize < 1:
		return invalid("redis_max_size", "redis_max_size must be at least 1")
	case c.AuthPepper == "":
		return invalid("auth_pepper", "auth_pepper is required")
	case c.AuthStretchCount < 1:
		return invalid("auth_stretch_count", "auth_stretch_count must be at least 1, got %d", c.AuthStretchCount)
	case c.MailDomain == "":
		return invalid("mail_domain", "mail_domain is required")
	case c.MailTransport != MailTransportSES && c.MailTransport != MailTransportLog:
		return invalid("mail_transport", "mail_transport must be 'ses' or 'log', got %q", c.MailTransport)
	case c.PasswordResetCodeExpire < 1:
		return invalid("password_reset_code_expire", "password_reset_code_expire must be positive")
	case c.ProvisionalSessionExpire < 1:
		return invalid("provisional_session_expire", "provisional_session_expire must be positive")
	case c.SessionExpire < 0:
		return invalid("session_expire", "session_expire must not be negative")
	case c.LogFormat != "json" && c.LogFormat != "text":
		return invalid("log_format", "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := c.level(); err != nil {
		return invalid("log_level", "log_level %q is not a level", c.LogLevel)
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

// ListenAddr is the API listen address on all interfaces.
func (c *Config) ListenAddr() string {
	return "0.0.0.0:" + strconv.Itoa(c.ListenPort)
}

// Logging returns the logger options.
func (c *Config) Logging() logging.Options {
	l, _ := c.level()
	return logging.Options{Format: c.LogFormat, Color: c.LogColor, Level: l}
}

// Store returns the connection options. The reader falls back to the
// primary Redis URL.
func (c *Config) Store() store.Options {
	reader := c.RedisReaderURL
	if reader == "" {
		reader = c.RedisPrimaryURL
	}
	return store.Options{
		Database: store.DatabaseOptions{
			URL:            c.DatabaseURL,
			MinConns:       int32(c.DatabaseMinConnections),
			MaxConns:       int32(c.DatabaseMaxConnections),
			ConnectTimeout: seconds(c.DatabaseConnectTimeout),
			IdleTimeout:    seconds(c.DatabaseIdleTimeout),
			MaxLifetime:    seconds(c.DatabaseMaxLifetime),
		},
		Primary: store.RedisOptions{URL: c.RedisPrimaryURL, MinIdle: c.RedisMinIdle, PoolSize: c.RedisMaxSize},
		Reader:  store.RedisOptions{URL: reader, MinIdle: c.RedisMinIdle, PoolSize: c.RedisMaxSize},
	}
}

// Auth returns the auth service settings.
func (c *Config) Auth() auth.Settings {
	return auth.Settings{
		MailDomain:            c.MailDomain,
		ProvisionalSessionTTL: seconds(c.ProvisionalSessionExpire),
		SessionTTL:            seconds(c.SessionExpire),
		PasswordResetCodeTTL:  seconds(c.PasswordResetCodeExpire),
		RejectExistingMail:    c.SignupRejectExistingMail,
	}
}

// RememberMeMaxAge is the lifetime of a remembered session cookie. Zero
// leaves the router default in place.
func (c *Config) RememberMeMaxAge() time.Duration {
	return seconds(c.SessionExpire)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
