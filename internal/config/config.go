package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Email     EmailConfig     `yaml:"email"`
	Captcha   CaptchaConfig   `yaml:"captcha"`
	Retention RetentionConfig `yaml:"retention"`
}

type ServerConfig struct {
	Name           string   `yaml:"name"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	TrustedProxies []string `yaml:"trusted_proxies"`
	SecureCookies  bool     `yaml:"secure_cookies"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// Disabled turns every store-backed flow into a SERVICE_DISABLED answer.
	Disabled bool `yaml:"disabled"`
}

type AuthConfig struct {
	SessionSecret    string        `yaml:"session_secret"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	RememberMeTTL    time.Duration `yaml:"remember_me_ttl"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LockoutMinutes   int           `yaml:"lockout_minutes"`
	VerificationTTL  time.Duration `yaml:"verification_ttl"`
	ResetTTL         time.Duration `yaml:"reset_ttl"`
}

type EmailConfig struct {
	SMTP SMTPConfig `yaml:"smtp"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Configured reports whether an outbound mail server was set up.
func (c SMTPConfig) Configured() bool {
	return c.Host != ""
}

type CaptchaConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SiteKey   string `yaml:"site_key"`
	SecretKey string `yaml:"secret_key"`
	VerifyURL string `yaml:"verify_url"`
}

type RetentionConfig struct {
	LoginAttemptDays int `yaml:"login_attempt_days"`
	VerificationDays int `yaml:"verification_days"`
	ResetTokenDays   int `yaml:"reset_token_days"`
	ContactDays      int `yaml:"contact_days"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config data, applies env overrides, validates and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GATEHOUSE_SESSION_SECRET"); v != "" {
		c.Auth.SessionSecret = v
	}
	if v := os.Getenv("GATEHOUSE_SMTP_PASSWORD"); v != "" {
		c.Email.SMTP.Password = v
	}
	if v := os.Getenv("GATEHOUSE_CAPTCHA_SECRET"); v != "" {
		c.Captcha.SecretKey = v
	}
}

func (c *Config) validate() error {
	if c.Auth.SessionSecret == "" {
		return fmt.Errorf("auth.session_secret is required")
	}
	if len(c.Auth.SessionSecret) < 32 {
		return fmt.Errorf("auth.session_secret must be at least 32 characters")
	}
	if c.Auth.MaxLoginAttempts < 0 {
		return fmt.Errorf("auth.max_login_attempts must not be negative")
	}
	if c.Auth.LockoutMinutes < 0 {
		return fmt.Errorf("auth.lockout_minutes must not be negative")
	}
	if c.Captcha.Enabled && c.Captcha.SecretKey == "" {
		return fmt.Errorf("captcha.secret_key is required when captcha is enabled")
	}
	if c.Email.SMTP.Configured() && c.Email.SMTP.From == "" {
		return fmt.Errorf("email.smtp.from is required when email.smtp.host is set")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "Gatehouse"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/gatehouse.db"
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 12 * time.Hour
	}
	if c.Auth.RememberMeTTL == 0 {
		c.Auth.RememberMeTTL = 30 * 24 * time.Hour
	}
	if c.Auth.MaxLoginAttempts == 0 {
		c.Auth.MaxLoginAttempts = 5
	}
	if c.Auth.LockoutMinutes == 0 {
		c.Auth.LockoutMinutes = 15
	}
	if c.Auth.VerificationTTL == 0 {
		c.Auth.VerificationTTL = 24 * time.Hour
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = time.Hour
	}
	if c.Email.SMTP.Port == 0 {
		c.Email.SMTP.Port = 587
	}
	if c.Captcha.VerifyURL == "" {
		c.Captcha.VerifyURL = "https://api.hcaptcha.com/siteverify"
	}
	if c.Retention.LoginAttemptDays == 0 {
		c.Retention.LoginAttemptDays = 30
	}
	if c.Retention.VerificationDays == 0 {
		c.Retention.VerificationDays = 7
	}
	if c.Retention.ResetTokenDays == 0 {
		c.Retention.ResetTokenDays = 7
	}
	if c.Retention.ContactDays == 0 {
		c.Retention.ContactDays = 90
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LockoutWindow is the rolling span used for failed-attempt accounting.
func (c *Config) LockoutWindow() time.Duration {
	return time.Duration(c.Auth.LockoutMinutes) * time.Minute
}
