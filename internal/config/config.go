package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type ReconcilerConfig struct {
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	ExpiryInterval time.Duration `mapstructure:"expiry_interval"`
}

type RateLimitConfig struct {
	InvitesPerMinute int `mapstructure:"invites_per_minute"`
}

type EmailConfig struct {
	Provider          string `mapstructure:"provider"` // smtp, sendgrid or console
	From              string `mapstructure:"from"`
	SMTPHost          string `mapstructure:"smtp_host"`
	SMTPPort          int    `mapstructure:"smtp_port"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	SendGridAPIKey    string `mapstructure:"sendgrid_api_key"`
	InviteURLTemplate string `mapstructure:"invite_url_template"`
}

type Config struct {
	DatabaseURL string           `mapstructure:"database_url"`
	RedisURL    string           `mapstructure:"redis_url"`
	ServerPort  string           `mapstructure:"server_port"`
	JWTSecret   string           `mapstructure:"jwt_secret"`
	Email       EmailConfig      `mapstructure:"email"`
	Reconciler  ReconcilerConfig `mapstructure:"reconciler"`
	RateLimit   RateLimitConfig  `mapstructure:"ratelimit"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}

	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.Email.Provider == "" {
		config.Email.Provider = "smtp"
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Email.InviteURLTemplate == "" {
		config.Email.InviteURLTemplate = "https://app.acadium.dev/accept-invitation/%s"
	}

	if config.Reconciler.SweepInterval == 0 {
		config.Reconciler.SweepInterval = 2 * time.Minute
	}
	if config.Reconciler.ExpiryInterval == 0 {
		config.Reconciler.ExpiryInterval = 30 * time.Second
	}

	if config.RateLimit.InvitesPerMinute == 0 {
		config.RateLimit.InvitesPerMinute = 30
	}

	return &config
}
