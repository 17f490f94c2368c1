package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain/ports/adapter"
)

var _ adapter.Engine = (*NoopAIAdapter)(nil)

// NoopAIAdapter answers locally without a provider, for dev and demos.
// It echoes the last user turn.
type NoopAIAdapter struct {
	delay time.Duration
	log   *zerolog.Logger
}

func NewNoopAIAdapter(log *zerolog.Logger) *NoopAIAdapter {
	return &NoopAIAdapter{delay: 100 * time.Millisecond, log: log}
}

func (a *NoopAIAdapter) Name() string           { return "noop" }
func (a *NoopAIAdapter) ResponseFormat() string { return "text" }

func (a *NoopAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (adapter.Output, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var question string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == adapter.RoleUser {
			question = req.Turns[i].Content
			break
		}
	}
	if a.log != nil {
		a.log.Debug().Int("turns", len(req.Turns)).Int("tools", len(req.Tools)).Msg("[noop-ai] generate")
	}
	return adapter.TextOutput{Text: fmt.Sprintf("This is a noop AI response to: %s", question)}, nil
}
