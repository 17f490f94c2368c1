//go:build !integration

package delivery

import (
	"context"
	"errors"
	"testing"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
)

func TestRouter_DispatchesByChannel(t *testing.T) {
	debug := NewLogSink(nil, 0)
	other := NewLogSink(nil, 0)
	r := NewRouter().Register(model.ChannelDebug, debug).Register(model.ChannelTelegram, other)

	target := model.DeliveryTarget{Channel: model.ChannelDebug, Address: "DEBUG_TOKEN", AckRef: "ack"}
	if err := r.PostMessage(context.Background(), target, "hello", model.Identity{Name: "bot"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RetractAcknowledgement(context.Background(), target); err != nil {
		t.Fatal(err)
	}

	if got := debug.Posted(); len(got) != 1 || got[0].Content != "hello" || got[0].As.Name != "bot" {
		t.Errorf("unexpected debug posts %+v", got)
	}
	if got := debug.Retracted(); len(got) != 1 || got[0] != "ack" {
		t.Errorf("unexpected retractions %v", got)
	}
	if len(other.Posted()) != 0 {
		t.Error("telegram sink should not receive debug messages")
	}
	if r.ContentLimit(target) != DebugLimit {
		t.Errorf("limit = %d", r.ContentLimit(target))
	}
}

func TestRouter_UnknownChannelIsPermanent(t *testing.T) {
	r := NewRouter()
	err := r.PostMessage(context.Background(), model.DeliveryTarget{Channel: "irc"}, "x", model.Identity{})
	if !errors.Is(err, domain.ErrUnknownChannel) || !domain.IsPermanent(err) {
		t.Fatalf("expected permanent unknown channel error, got %v", err)
	}
	if r.ContentLimit(model.DeliveryTarget{Channel: "irc"}) != 0 {
		t.Error("unknown channel should report no limit")
	}
}

func TestLogSink_KeepsMostRecent(t *testing.T) {
	s := NewLogSink(nil, 2)
	for _, c := range []string{"a", "b", "c"} {
		_ = s.PostMessage(context.Background(), model.DeliveryTarget{}, c, model.Identity{})
	}
	got := s.Posted()
	if len(got) != 2 || got[0].Content != "b" || got[1].Content != "c" {
		t.Errorf("unexpected ring contents %+v", got)
	}
}

func TestLogSink_RespectsCancelledContext(t *testing.T) {
	s := NewLogSink(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.PostMessage(ctx, model.DeliveryTarget{}, "x", model.Identity{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
