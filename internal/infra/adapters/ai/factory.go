package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/config"
	"async-ask-bot/internal/domain/ports/adapter"
)

// NewEngine builds the configured provider wrapped in the concurrency limiter.
// In dev mode a missing OpenAI key falls back to the noop engine.
func NewEngine(ctx context.Context, cfg config.AIConfig, dev bool, log *zerolog.Logger) (adapter.Engine, error) {
	var (
		eng adapter.Engine
		err error
	)
	provider := cfg.Provider
	if provider == "openai" && cfg.OpenAIKey == "" && dev {
		log.Warn().Msg("ai.openai_key empty in dev mode; using noop engine")
		provider = "noop"
	}
	switch provider {
	case "openai":
		eng, err = NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.MaxOutputTokens)
	case "gemini":
		eng, err = NewGeminiAdapter(ctx, cfg.GeminiKey, "", cfg.DefaultModel, cfg.MaxOutputTokens)
	case "workers":
		eng, err = NewWorkersAIAdapter(cfg.WorkersAccount, cfg.WorkersToken, cfg.WorkersBaseURL,
			cfg.DefaultModel, cfg.ResponseFormat, cfg.MaxOutputTokens)
	case "noop":
		eng = NewNoopAIAdapter(log)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", eng.Name()).Str("model", cfg.DefaultModel).
		Str("format", eng.ResponseFormat()).Int("concurrency", cfg.ConcurrentLimit).
		Msg("generation engine ready")
	return NewLimitedAI(eng, cfg.ConcurrentLimit), nil
}
