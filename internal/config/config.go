package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env"
)

type Config struct {
	OpenAiKey       string        `env:"OPENAI_API_KEY"`
	OpenAiBaseUrl   string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	QwenKey         string        `env:"QWEN_API_KEY"`
	QwenBaseUrl     string        `env:"QWEN_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LogsDir         string        `env:"LOGS_DIR" envDefault:"logs"`
	Port            string        `env:"PORT" envDefault:"8000"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10m"`
	AuditBestEffort bool          `env:"AUDIT_BEST_EFFORT" envDefault:"false"`
	StatsEnabled    bool          `env:"STATS_ENABLED" envDefault:"false"`
	StatsAddress    string        `env:"STATS_ADDRESS" envDefault:"127.0.0.1:8125"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsPort     string        `env:"METRICS_PORT" envDefault:"2112"`
}

func ParseEnvVariables() (*Config, error) {
	cfg := &Config{}
	err := env.Parse(cfg)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the credentials the proxy cannot run without. The
// alternate upstream credential is optional; requests selecting it are
// forwarded with whatever value is configured.
func (c *Config) Validate() error {
	if len(c.OpenAiKey) == 0 {
		return errors.New("OPENAI_API_KEY environment variable is not set")
	}

	return nil
}
