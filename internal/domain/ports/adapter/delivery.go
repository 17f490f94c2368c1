package adapter

import (
	"context"
	"fmt"
	"net/http"

	"async-ask-bot/internal/domain/model"
)

// Delivery posts messages to the chat platform a job came from.
type Delivery interface {
	PostMessage(ctx context.Context, target model.DeliveryTarget, content string, as model.Identity) error
	// RetractAcknowledgement removes the placeholder shown at intake. Best-effort.
	RetractAcknowledgement(ctx context.Context, target model.DeliveryTarget) error
	// ContentLimit is the maximum message length, in characters, the channel accepts.
	ContentLimit(target model.DeliveryTarget) int
}

// DeliveryError reports a non-success answer from a delivery channel.
type DeliveryError struct {
	Channel string
	Status  int
	Body    string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery error: %d - %s", e.Channel, e.Status, e.Body)
}

// Transient reports whether retrying the same request may succeed.
func (e *DeliveryError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500 || e.Status == 0
}
