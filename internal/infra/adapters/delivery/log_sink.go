package delivery

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/infra/metrics"
)

// DebugLimit mirrors the Discord message limit so debug runs truncate the same way.
const DebugLimit = 2000

// Posted is one message recorded by LogSink.
type Posted struct {
	Target  model.DeliveryTarget
	Content string
	As      model.Identity
}

var _ adapter.Delivery = (*LogSink)(nil)

// LogSink writes deliveries to the log instead of a chat platform. It backs
// the debug channel and keeps the last few messages for inspection.
type LogSink struct {
	log  *zerolog.Logger
	keep int

	mu        sync.Mutex
	posted    []Posted
	retracted []string
}

func NewLogSink(log *zerolog.Logger, keep int) *LogSink {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	if keep <= 0 {
		keep = 50
	}
	l := log.With().Str("component", "debug_delivery").Logger()
	return &LogSink{log: &l, keep: keep}
}

func (s *LogSink) PostMessage(ctx context.Context, target model.DeliveryTarget, content string, as model.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info().
		Str("address", target.Address).
		Str("as", as.Name).
		Int("length", len([]rune(content))).
		Str("content", content).
		Msg("debug delivery")

	s.mu.Lock()
	s.posted = append(s.posted, Posted{Target: target, Content: content, As: as})
	if len(s.posted) > s.keep {
		s.posted = s.posted[len(s.posted)-s.keep:]
	}
	s.mu.Unlock()
	metrics.IncDelivery(model.ChannelDebug, "post", true)
	return nil
}

func (s *LogSink) RetractAcknowledgement(ctx context.Context, target model.DeliveryTarget) error {
	if target.AckRef == "" {
		return nil
	}
	s.log.Info().Str("address", target.Address).Str("ack_ref", target.AckRef).Msg("debug acknowledgement retracted")
	s.mu.Lock()
	s.retracted = append(s.retracted, target.AckRef)
	s.mu.Unlock()
	metrics.IncDelivery(model.ChannelDebug, "retract", true)
	return nil
}

func (s *LogSink) ContentLimit(model.DeliveryTarget) int { return DebugLimit }

// Posted returns a copy of the recorded messages, oldest first.
func (s *LogSink) Posted() []Posted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Posted(nil), s.posted...)
}

func (s *LogSink) Retracted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.retracted...)
}
