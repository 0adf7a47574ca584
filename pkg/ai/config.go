package ai

import (
	"time"

	"github.com/Alijeyrad/tabib_backend/config"
)

type Config struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
		Timeout: 60 * time.Second,
	}
}

func FromCentralConfig(c config.AIConfig) Config {
	d := DefaultConfig()
	cfg := Config{
		Enabled:     c.Enabled,
		BaseURL:     c.BaseURL,
		APIKey:      c.APIKey,
		Model:       c.Model,
		VisionModel: c.VisionModel,
		Timeout:     time.Duration(c.TimeoutSeconds) * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = d.Model
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return cfg
}
