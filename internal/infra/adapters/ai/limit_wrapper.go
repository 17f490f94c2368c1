package ai

import (
	"context"

	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/infra/metrics"
)

var _ adapter.Engine = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.Engine
	sem   chan struct{}
}

// NewLimitedAI caps concurrent Generate calls on inner. maxConcurrent <= 0 disables the cap.
func NewLimitedAI(inner adapter.Engine, maxConcurrent int) adapter.Engine {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Name() string           { return l.inner.Name() }
func (l *limitedAI) ResponseFormat() string { return l.inner.ResponseFormat() }

func (l *limitedAI) Generate(ctx context.Context, req adapter.GenerateRequest) (adapter.Output, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	metrics.AIInflight(1)
	defer func() {
		<-l.sem
		metrics.AIInflight(-1)
	}()
	return l.inner.Generate(ctx, req)
}
