package delivery

import (
	"context"
	"fmt"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
)

var _ adapter.Delivery = (*Router)(nil)

// Router dispatches each call to the Delivery registered for target.Channel.
type Router struct {
	byChannel map[string]adapter.Delivery
}

func NewRouter() *Router {
	return &Router{byChannel: make(map[string]adapter.Delivery)}
}

// Register binds channel to d. Registering the same channel twice replaces it.
func (r *Router) Register(channel string, d adapter.Delivery) *Router {
	r.byChannel[channel] = d
	return r
}

func (r *Router) pick(target model.DeliveryTarget) (adapter.Delivery, error) {
	d, ok := r.byChannel[target.Channel]
	if !ok {
		return nil, domain.Permanent(fmt.Errorf("%w: %q", domain.ErrUnknownChannel, target.Channel))
	}
	return d, nil
}

func (r *Router) PostMessage(ctx context.Context, target model.DeliveryTarget, content string, as model.Identity) error {
	d, err := r.pick(target)
	if err != nil {
		return err
	}
	return d.PostMessage(ctx, target, content, as)
}

func (r *Router) RetractAcknowledgement(ctx context.Context, target model.DeliveryTarget) error {
	d, err := r.pick(target)
	if err != nil {
		return err
	}
	return d.RetractAcknowledgement(ctx, target)
}

// ContentLimit returns 0 for unknown channels; PostMessage will reject them anyway.
func (r *Router) ContentLimit(target model.DeliveryTarget) int {
	d, err := r.pick(target)
	if err != nil {
		return 0
	}
	return d.ContentLimit(target)
}

// Channels lists the registered channel names.
func (r *Router) Channels() []string {
	out := make([]string, 0, len(r.byChannel))
	for c := range r.byChannel {
		out = append(out, c)
	}
	return out
}
