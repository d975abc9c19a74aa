package main

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds environment-driven settings. Flags override these.
type Config struct {
	Provider      string        `env:"REACTOR_PROVIDER" envDefault:"anthropic"`
	Model         string        `env:"REACTOR_MODEL"`
	APIKey        string        `env:"REACTOR_API_KEY"`
	MaxTokens     int           `env:"REACTOR_MAX_TOKENS" envDefault:"4096"`
	MaxIterations int           `env:"REACTOR_MAX_ITERATIONS" envDefault:"15"`
	ThinkTimeout  time.Duration `env:"REACTOR_THINK_TIMEOUT" envDefault:"120s"`
	ToolTimeout   time.Duration `env:"REACTOR_TOOL_TIMEOUT" envDefault:"300s"`
	LogLevel      string        `env:"REACTOR_LOG_LEVEL" envDefault:"info"`
}

func loadConfig() (Config, error) {
	return env.ParseAs[Config]()
}
