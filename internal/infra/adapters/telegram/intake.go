package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/infra/i18n"
	"async-ask-bot/internal/infra/logging"
	"async-ask-bot/internal/infra/metrics"
	"async-ask-bot/internal/usecase"
)

// Poller long-polls the Bot API and turns /ask commands into jobs.
type Poller struct {
	bot           BotAPI
	intake        usecase.IntakeUseCase
	texts         *i18n.Bundle
	username      string
	updateWorkers int
	log           *zerolog.Logger

	cancelPolling context.CancelFunc
}

func NewPoller(bot BotAPI, intake usecase.IntakeUseCase, texts *i18n.Bundle, username string, updateWorkers int, log *zerolog.Logger) (*Poller, error) {
	if bot == nil {
		return nil, errors.New("telegram bot is nil")
	}
	if intake == nil {
		return nil, errors.New("intake use case is nil")
	}
	if texts == nil {
		b, err := i18n.LoadBundle(i18n.LocalesFS)
		if err != nil {
			return nil, err
		}
		texts = b
	}
	if updateWorkers <= 0 {
		updateWorkers = 5
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "telegram_intake").Logger()
	return &Poller{
		bot:           bot,
		intake:        intake,
		texts:         texts,
		username:      strings.TrimPrefix(username, "@"),
		updateWorkers: updateWorkers,
		log:           &l,
	}, nil
}

// StartPolling blocks until ctx is cancelled or StopPolling is called.
func (p *Poller) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := p.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	p.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < p.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up, ok := <-updateChan:
					if !ok {
						return
					}
					if err := p.HandleUpdate(ctx, up); err != nil {
						p.log.Error().Err(err).Int("worker", id).Msg("telegram update failed")
					}
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				cancel()
				continue
			}
			updateChan <- up
		}
	}
}

func (p *Poller) StopPolling() {
	if p.cancelPolling != nil {
		p.cancelPolling()
	}
}

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

func (p *Poller) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": p.handleStartCommand,
		"help":  p.handleStartCommand,
		"ask":   p.handleAskCommand,
	}
}

// HandleUpdate routes one update. Non-command messages are ignored.
func (p *Poller) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return nil
	}
	// in groups commands may be addressed to another bot: /ask@other_bot
	if at := msg.CommandWithAt(); strings.Contains(at, "@") && p.username != "" &&
		!strings.EqualFold(at[strings.Index(at, "@")+1:], p.username) {
		return nil
	}
	h, ok := p.commandRoutes()[msg.Command()]
	if !ok {
		return nil
	}
	ctx = logging.WithChannel(ctx, model.ChannelTelegram)
	return h(ctx, msg)
}

func (p *Poller) tr(msg *tgbotapi.Message) *i18n.Translator {
	lang := ""
	if msg.From != nil {
		lang = msg.From.LanguageCode
	}
	return p.texts.For(lang)
}

func (p *Poller) reply(msg *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	return p.bot.Send(out)
}

func (p *Poller) handleStartCommand(ctx context.Context, msg *tgbotapi.Message) error {
	_, err := p.reply(msg, p.tr(msg).T("start_welcome"))
	return err
}

func (p *Poller) handleAskCommand(ctx context.Context, msg *tgbotapi.Message) error {
	tr := p.tr(msg)
	question := strings.TrimSpace(msg.CommandArguments())
	if question == "" {
		metrics.IncIntakeRejected("empty")
		_, err := p.reply(msg, tr.T("ask_usage"))
		return err
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	target := model.DeliveryTarget{
		Channel: model.ChannelTelegram,
		Address: chatID,
		Locale:  msg.From.LanguageCode,
		Requester: model.Identity{
			ID:   strconv.FormatInt(msg.From.ID, 10),
			Name: displayName(msg.From),
		},
	}

	// the placeholder is the acknowledgement retracted once the answer is out
	ack, err := p.reply(msg, tr.T("ask_thinking"))
	if err != nil {
		p.log.Warn().Err(err).Msg("placeholder not sent")
	} else {
		target.AckRef = strconv.Itoa(ack.MessageID)
	}

	ctx = logging.WithRequester(ctx, target.Requester.ID)
	job, err := p.intake.Submit(ctx, question, chatID, target)
	if err != nil {
		reason, text := "error", tr.T("ask_failed")
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			reason, text = "rate_limited", tr.T("ask_rate_limited")
		case errors.Is(err, domain.ErrEmptyQuestion):
			reason, text = "empty", tr.T("ask_usage")
		}
		metrics.IncIntakeRejected(reason)
		logging.With(ctx, p.log).Warn().Err(err).Str("reason", reason).Msg("ask rejected")
		if target.AckRef != "" {
			edit := tgbotapi.NewEditMessageText(msg.Chat.ID, ack.MessageID, text)
			if _, err := p.bot.Request(edit); err == nil {
				return nil
			}
		}
		_, err = p.reply(msg, text)
		return err
	}

	metrics.IncIntakeAccepted(model.ChannelTelegram)
	logging.With(logging.WithJobID(ctx, job.ID), p.log).Info().Msg("ask accepted")
	return nil
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
