package intent

import (
	"time"

	appconfig "payment-assistant/internal/common/config"
)

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
	Timeout       time.Duration
}

func ConfigFromApp(cfg appconfig.GenAIConfig) *Config {
	return &Config{
		BaseURL:       cfg.BaseURL,
		APIKey:        cfg.APIKey,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		HistoryWindow: cfg.HistoryWindow,
		Timeout:       appconfig.GetDuration(cfg.Timeout),
	}
}
