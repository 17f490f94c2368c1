// Package discord talks to Discord: interaction webhooks for delivery,
// request signature checks for intake, and slash command registration.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/infra/metrics"
)

const (
	DefaultAPIBaseURL = "https://discord.com/api/v10"
	// MessageLimit is the content length Discord accepts per message.
	MessageLimit = 2000
	// OriginalMessage addresses the deferred response of an interaction.
	OriginalMessage = "@original"
)

var _ adapter.Delivery = (*WebhookClient)(nil)

// WebhookClient delivers job messages as interaction follow-ups.
// The interaction token in target.Address authorises every call.
type WebhookClient struct {
	appID  string
	base   string
	client *http.Client
	log    *zerolog.Logger
}

func NewWebhookClient(appID, baseURL string, log *zerolog.Logger) *WebhookClient {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "discord").Logger()
	return &WebhookClient{
		appID:  appID,
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
		log:    &l,
	}
}

type webhookMessage struct {
	Content         string          `json:"content"`
	Username        string          `json:"username,omitempty"`
	AvatarURL       string          `json:"avatar_url,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

// PostMessage sends a follow-up message shown under the given identity.
func (c *WebhookClient) PostMessage(ctx context.Context, target model.DeliveryTarget, content string, as model.Identity) error {
	msg := webhookMessage{
		Content:         content,
		Username:        as.Name,
		AvatarURL:       as.AvatarURL,
		AllowedMentions: allowedMentions{Parse: []string{}},
	}
	url := fmt.Sprintf("%s/webhooks/%s/%s", c.base, c.appID, target.Address)
	err := c.do(ctx, http.MethodPost, url, msg)
	metrics.IncDelivery(model.ChannelDiscord, "post", err == nil)
	return err
}

// EditOriginal replaces the deferred "thinking" response.
func (c *WebhookClient) EditOriginal(ctx context.Context, token, content string) error {
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/%s", c.base, c.appID, token, OriginalMessage)
	return c.do(ctx, http.MethodPatch, url, webhookMessage{Content: content, AllowedMentions: allowedMentions{Parse: []string{}}})
}

// RetractAcknowledgement deletes the deferred response. A 404 means it is already gone.
func (c *WebhookClient) RetractAcknowledgement(ctx context.Context, target model.DeliveryTarget) error {
	ref := target.AckRef
	if ref == "" {
		return nil
	}
	url := fmt.Sprintf("%s/webhooks/%s/%s/messages/%s", c.base, c.appID, target.Address, ref)
	err := c.do(ctx, http.MethodDelete, url, nil)
	var de *adapter.DeliveryError
	if errors.As(err, &de) && de.Status == http.StatusNotFound {
		c.log.Debug().Msg("acknowledgement already removed")
		err = nil
	}
	metrics.IncDelivery(model.ChannelDiscord, "retract", err == nil)
	return err
}

func (c *WebhookClient) ContentLimit(model.DeliveryTarget) int { return MessageLimit }

func (c *WebhookClient) do(ctx context.Context, method, url string, body any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &adapter.DeliveryError{Channel: model.ChannelDiscord, Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	c.log.Warn().Str("method", method).Int("status", resp.StatusCode).Msg("discord api error")
	return &adapter.DeliveryError{Channel: model.ChannelDiscord, Status: resp.StatusCode, Body: string(raw)}
}
