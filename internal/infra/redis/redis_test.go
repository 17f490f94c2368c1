//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/model"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	cli := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return Wrap(cli), srv
}

func TestRedisLocker(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	l := NewLocker(c)

	tok, err := l.TryLock(ctx, "job:run:1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if _, err := l.TryLock(ctx, "job:run:1", time.Minute); !errors.Is(err, domain.ErrJobBusy) {
		t.Fatalf("expected ErrJobBusy, got %v", err)
	}
	if err := l.Unlock(ctx, "job:run:1", "someone-else"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !srv.Exists("job:run:1") {
		t.Fatalf("foreign token must not release the lock")
	}
	if err := l.Unlock(ctx, "job:run:1", tok); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if srv.Exists("job:run:1") {
		t.Fatalf("lock should be released")
	}

	_, _ = l.TryLock(ctx, "job:run:2", time.Second)
	srv.FastForward(2 * time.Second)
	if _, err := l.TryLock(ctx, "job:run:2", time.Second); err != nil {
		t.Fatalf("expired lock should be free: %v", err)
	}
}

func TestRateLimiter(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	r := NewRateLimiter(c)

	for i := 0; i < 2; i++ {
		if ok, err := r.Allow(ctx, "rl", 2, time.Minute); err != nil || !ok {
			t.Fatalf("hit %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := r.Allow(ctx, "rl", 2, time.Minute); ok {
		t.Fatalf("third hit should be limited")
	}
	srv.FastForward(time.Minute + time.Second)
	if ok, _ := r.Allow(ctx, "rl", 2, time.Minute); !ok {
		t.Fatalf("window should have reset")
	}
}

func TestStepLog(t *testing.T) {
	c, srv := newTestClient(t)
	ctx := context.Background()
	s := NewStepLog(c, time.Hour)

	if _, err := s.Get(ctx, "j", "generate-answer"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	first := &model.StepRecord{JobID: "j", Step: "generate-answer", Outcome: model.StepOutcomeDone, Output: "first", CompletedAt: time.Now().UTC()}
	second := &model.StepRecord{JobID: "j", Step: "generate-answer", Outcome: model.StepOutcomeDone, Output: "second", CompletedAt: time.Now().UTC()}
	if err := s.Mark(ctx, first); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := s.Mark(ctx, second); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	got, err := s.Get(ctx, "j", "generate-answer")
	if err != nil || got.Output != "first" {
		t.Fatalf("got %+v, %v", got, err)
	}
	_ = s.Mark(ctx, &model.StepRecord{JobID: "j", Step: "deliver-answer", Outcome: model.StepOutcomeDone, CompletedAt: time.Now().UTC().Add(time.Second)})
	list, err := s.List(ctx, "j")
	if err != nil || len(list) != 2 || list[0].Step != "generate-answer" {
		t.Fatalf("List = %+v, %v", list, err)
	}
	if ttl := srv.TTL(stepKey("j")); ttl <= 0 {
		t.Fatalf("step hash should expire, ttl=%s", ttl)
	}
}

func TestStepLog_Unavailable(t *testing.T) {
	c, srv := newTestClient(t)
	srv.Close()
	s := NewStepLog(c, time.Hour)
	if _, err := s.Get(context.Background(), "j", "x"); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
