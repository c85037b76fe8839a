package runtimeinit

import (
	"context"
	"fmt"
	"log"
	"time"

	"screen-reader-llm/src/clipboard"
	"screen-reader-llm/src/config"
	"screen-reader-llm/src/llm"
)

const pingTimeout = 10 * time.Second

type Options struct {
	LoadOptions   config.LoadOptions
	SetupLogging  func(bool)
	RequireAPIKey bool
	// CheckBackend pings the configured model endpoint before returning.
	CheckBackend bool
}

func Bootstrap(ctx context.Context, opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("MODEL is required. Please set it in your .env file")
	}
	if opts.RequireAPIKey && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s is required. Checked key file %s and %s env var", config.APIKeyEnvVar, cfg.APIKeyPath, config.APIKeyEnvVar)
	}

	if opts.CheckBackend {
		client, err := NewLLMClient(cfg, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("startup check failed: %w", err)
		}
		log.Printf("LLM ping succeeded")
	}

	if cfg.CopyToClipboard {
		if err := clipboard.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	}

	return cfg, nil
}

// NewLLMClient builds a client for apiKey and model using the endpoint
// settings from cfg.
func NewLLMClient(cfg *config.Config, apiKey, model string) (*llm.Client, error) {
	return llm.New(llm.Config{
		APIKey:    apiKey,
		Model:     model,
		BaseURL:   cfg.BaseURL,
		Providers: cfg.Providers,
		MaxTokens: cfg.MaxTokens,
	})
}
