package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	SignalHireAPIBaseURL string `env:"SIGNALHIRE_API_BASE_URL,default=https://www.signalhire.com"`
	SignalHireAPIPrefix  string `env:"SIGNALHIRE_API_PREFIX,default=/api/v1"`
	SignalHireAPIKey     string `env:"SIGNALHIRE_API_KEY,required=true"`

	// CallbackBaseURL is this service's public address; the provider posts
	// results back to it.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL,required=true"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=465"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	SubmitRatePerSec  int `env:"SUBMIT_RATE_PER_SEC,default=10"`
	SubmitConcurrency int `env:"SUBMIT_CONCURRENCY,default=8"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// CallbackURL is the full person-callback endpoint handed to the provider
// on every submission.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.CallbackBaseURL, "/") + "/v1/callbacks/person"
}

// SMTPEnabled reports whether enough mail settings are present to send
// result emails. The service runs without them; completion is then only
// observable through the API.
func (c *Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.SMTPHost) != "" &&
		strings.TrimSpace(c.SMTPUser) != "" &&
		strings.TrimSpace(c.SMTPPassword) != ""
}
