package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/infra/metrics"
)

// MessageLimit is Telegram's maximum text length per message.
const MessageLimit = 4096

// BotAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ BotAPI = (*tgbotapi.BotAPI)(nil)

// NewBotAPI logs in with token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	return tgbotapi.NewBotAPI(token)
}

var _ adapter.Delivery = (*Delivery)(nil)

// Delivery posts job messages into the chat in target.Address.
// Bots cannot speak as another user, so messages under a non-system
// identity are prefixed with that identity's name.
type Delivery struct {
	bot        BotAPI
	systemName string
	log        *zerolog.Logger
}

func NewDelivery(bot BotAPI, systemName string, log *zerolog.Logger) *Delivery {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "telegram").Logger()
	return &Delivery{bot: bot, systemName: systemName, log: &l}
}

func (d *Delivery) PostMessage(ctx context.Context, target model.DeliveryTarget, content string, as model.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := parseChatID(target.Address)
	if err != nil {
		return err
	}
	text := content
	if as.Name != "" && as.Name != d.systemName {
		text = as.Name + ": " + content
	}
	msg := tgbotapi.NewMessage(chatID, cutRunes(text, MessageLimit))
	msg.DisableWebPagePreview = true
	_, err = d.bot.Send(msg)
	err = mapError(err)
	metrics.IncDelivery(model.ChannelTelegram, "post", err == nil)
	return err
}

// RetractAcknowledgement deletes the placeholder message whose id is target.AckRef.
func (d *Delivery) RetractAcknowledgement(ctx context.Context, target model.DeliveryTarget) error {
	if target.AckRef == "" {
		return nil
	}
	chatID, err := parseChatID(target.Address)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(target.AckRef)
	if err != nil {
		return fmt.Errorf("telegram: bad ack ref %q: %w", target.AckRef, err)
	}
	_, err = d.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
	err = mapError(err)
	metrics.IncDelivery(model.ChannelTelegram, "retract", err == nil)
	return err
}

func (d *Delivery) ContentLimit(model.DeliveryTarget) int { return MessageLimit }

func parseChatID(addr string) (int64, error) {
	id, err := strconv.ParseInt(addr, 10, 64)
	if err != nil {
		return 0, &adapter.DeliveryError{Channel: model.ChannelTelegram, Status: 400, Body: "bad chat id " + strconv.Quote(addr)}
	}
	return id, nil
}

// mapError converts Bot API failures to DeliveryError so retry classification works.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		status := apiErr.Code
		if apiErr.RetryAfter > 0 {
			status = 429
		}
		return &adapter.DeliveryError{Channel: model.ChannelTelegram, Status: status, Body: apiErr.Message}
	}
	return &adapter.DeliveryError{Channel: model.ChannelTelegram, Status: 0, Body: err.Error()}
}

func cutRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
