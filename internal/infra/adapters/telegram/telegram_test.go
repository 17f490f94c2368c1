//go:build !integration

package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int

	SendFunc    func(c tgbotapi.Chattable) (tgbotapi.Message, error)
	RequestFunc func(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, c)
	f.nextID++
	id := f.nextID
	f.mu.Unlock()
	if f.SendFunc != nil {
		return f.SendFunc(c)
	}
	return tgbotapi.Message{MessageID: 100 + id}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, c)
	f.mu.Unlock()
	if f.RequestFunc != nil {
		return f.RequestFunc(c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

type fakeIntake struct {
	SubmitFunc func(ctx context.Context, question, token string, target model.DeliveryTarget) (*model.Job, error)
}

func (f *fakeIntake) Submit(ctx context.Context, question, token string, target model.DeliveryTarget) (*model.Job, error) {
	return f.SubmitFunc(ctx, question, token, target)
}

func (f *fakeIntake) Status(context.Context, string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}

func TestDelivery_PostMessage(t *testing.T) {
	bot := &fakeBot{}
	d := NewDelivery(bot, "Answer Bot", nil)
	target := model.DeliveryTarget{Channel: model.ChannelTelegram, Address: "-1001"}

	if err := d.PostMessage(context.Background(), target, "why is the sky blue?", model.Identity{Name: "alice"}); err != nil {
		t.Fatalf("post as requester: %v", err)
	}
	if err := d.PostMessage(context.Background(), target, "Rayleigh scattering.", model.Identity{Name: "Answer Bot"}); err != nil {
		t.Fatalf("post as system: %v", err)
	}

	first := bot.sent[0].(tgbotapi.MessageConfig)
	if first.ChatID != -1001 || first.Text != "alice: why is the sky blue?" {
		t.Errorf("unexpected requester message: chat=%d text=%q", first.ChatID, first.Text)
	}
	second := bot.sent[1].(tgbotapi.MessageConfig)
	if second.Text != "Rayleigh scattering." {
		t.Errorf("system message should not be prefixed, got %q", second.Text)
	}
}

func TestDelivery_TruncatesToLimit(t *testing.T) {
	bot := &fakeBot{}
	d := NewDelivery(bot, "bot", nil)
	long := strings.Repeat("é", MessageLimit+50)

	if err := d.PostMessage(context.Background(), model.DeliveryTarget{Address: "1"}, long, model.Identity{Name: "bot"}); err != nil {
		t.Fatal(err)
	}
	got := bot.sent[0].(tgbotapi.MessageConfig).Text
	if n := utf8.RuneCountInString(got); n != MessageLimit {
		t.Errorf("expected %d runes, got %d", MessageLimit, n)
	}
}

func TestDelivery_BadChatIDIsPermanent(t *testing.T) {
	d := NewDelivery(&fakeBot{}, "bot", nil)
	err := d.PostMessage(context.Background(), model.DeliveryTarget{Address: "not-a-chat"}, "x", model.Identity{})
	var de *adapter.DeliveryError
	if !errors.As(err, &de) || de.Transient() {
		t.Fatalf("expected non-transient delivery error, got %v", err)
	}
}

func TestDelivery_Retract(t *testing.T) {
	bot := &fakeBot{}
	d := NewDelivery(bot, "bot", nil)

	if err := d.RetractAcknowledgement(context.Background(), model.DeliveryTarget{Address: "5"}); err != nil {
		t.Fatalf("empty ack ref should be a no-op: %v", err)
	}
	if len(bot.requests) != 0 {
		t.Fatalf("expected no request, got %d", len(bot.requests))
	}

	if err := d.RetractAcknowledgement(context.Background(), model.DeliveryTarget{Address: "5", AckRef: "77"}); err != nil {
		t.Fatal(err)
	}
	del, ok := bot.requests[0].(tgbotapi.DeleteMessageConfig)
	if !ok || del.ChatID != 5 || del.MessageID != 77 {
		t.Errorf("unexpected delete request: %#v", bot.requests[0])
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		transient bool
	}{
		{"forbidden", &tgbotapi.Error{Code: 403, Message: "bot was blocked"}, 403, false},
		{"flood", &tgbotapi.Error{Code: 400, Message: "slow down", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}, 429, true},
		{"network", errors.New("connection reset"), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var de *adapter.DeliveryError
			if !errors.As(mapError(tt.err), &de) {
				t.Fatal("expected DeliveryError")
			}
			if de.Status != tt.status || de.Transient() != tt.transient {
				t.Errorf("got status=%d transient=%v", de.Status, de.Transient())
			}
		})
	}
}

func askUpdate(text string) tgbotapi.Update {
	cmdLen := strings.IndexByte(text+" ", ' ')
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 9,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: 42},
		From:      &tgbotapi.User{ID: 7, FirstName: "Ada", LastName: "L", LanguageCode: "ja"},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func TestPoller_AskSubmitsJob(t *testing.T) {
	bot := &fakeBot{}
	var got model.DeliveryTarget
	var question string
	intake := &fakeIntake{SubmitFunc: func(_ context.Context, q, token string, target model.DeliveryTarget) (*model.Job, error) {
		question, got = q, target
		return &model.Job{ID: "job-1"}, nil
	}}
	p, err := NewPoller(bot, intake, nil, "askbot", 1, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := p.HandleUpdate(context.Background(), askUpdate("/ask  what is go? ")); err != nil {
		t.Fatal(err)
	}

	if question != "what is go?" {
		t.Errorf("question = %q", question)
	}
	if got.Channel != model.ChannelTelegram || got.Address != "42" || got.Locale != "ja" {
		t.Errorf("unexpected target %+v", got)
	}
	if got.AckRef != "101" {
		t.Errorf("ack ref should be the placeholder id, got %q", got.AckRef)
	}
	if got.Requester.ID != "7" || got.Requester.Name != "Ada L" {
		t.Errorf("unexpected requester %+v", got.Requester)
	}
}

func TestPoller_AskWithoutQuestionRepliesUsage(t *testing.T) {
	bot := &fakeBot{}
	intake := &fakeIntake{SubmitFunc: func(context.Context, string, string, model.DeliveryTarget) (*model.Job, error) {
		t.Fatal("submit must not be called")
		return nil, nil
	}}
	p, _ := NewPoller(bot, intake, nil, "", 1, nil)

	if err := p.HandleUpdate(context.Background(), askUpdate("/ask")); err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected one usage reply, got %d", len(bot.sent))
	}
	if txt := bot.sent[0].(tgbotapi.MessageConfig).Text; txt == "ask_usage" || txt == "" {
		t.Errorf("usage text not translated: %q", txt)
	}
}

func TestPoller_RateLimitedEditsPlaceholder(t *testing.T) {
	bot := &fakeBot{}
	intake := &fakeIntake{SubmitFunc: func(context.Context, string, string, model.DeliveryTarget) (*model.Job, error) {
		return nil, domain.ErrRateLimited
	}}
	p, _ := NewPoller(bot, intake, nil, "", 1, nil)

	if err := p.HandleUpdate(context.Background(), askUpdate("/ask hi")); err != nil {
		t.Fatal(err)
	}
	if len(bot.requests) != 1 {
		t.Fatalf("expected placeholder edit, got %d requests", len(bot.requests))
	}
	edit, ok := bot.requests[0].(tgbotapi.EditMessageTextConfig)
	if !ok || edit.MessageID != 101 {
		t.Errorf("unexpected edit %#v", bot.requests[0])
	}
}

func TestPoller_IgnoresOtherBotsAndPlainText(t *testing.T) {
	bot := &fakeBot{}
	called := false
	intake := &fakeIntake{SubmitFunc: func(context.Context, string, string, model.DeliveryTarget) (*model.Job, error) {
		called = true
		return &model.Job{ID: "x"}, nil
	}}
	p, _ := NewPoller(bot, intake, nil, "askbot", 1, nil)

	_ = p.HandleUpdate(context.Background(), askUpdate("/ask@otherbot hi"))
	plain := askUpdate("hello")
	plain.Message.Entities = nil
	_ = p.HandleUpdate(context.Background(), plain)

	if called || len(bot.sent) != 0 {
		t.Errorf("expected nothing handled, submit=%v sent=%d", called, len(bot.sent))
	}
}
