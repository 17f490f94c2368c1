package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/ports/repository"
)

var (
	_ repository.Locker      = (*Locker)(nil)
	_ repository.RateLimiter = (*RateLimiter)(nil)
)

type lease struct {
	token   string
	expires time.Time
}

// Locker is an in-process replacement for the Redis lock.
type Locker struct {
	mu    sync.Mutex
	held  map[string]lease
	clock func() time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]lease), clock: time.Now}
}

func (l *Locker) TryLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", domain.ErrJobBusy
	}
	token := uuid.NewString()
	l.held[key] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *Locker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.held[key]; ok && cur.token == token {
		delete(l.held, key)
	}
	return nil
}

type window struct {
	count   int
	expires time.Time
}

// RateLimiter is a fixed-window counter, the in-process twin of the Redis limiter.
type RateLimiter struct {
	mu    sync.Mutex
	wins  map[string]*window
	clock func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{wins: make(map[string]*window), clock: time.Now}
}

func (r *RateLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	w, ok := r.wins[key]
	if !ok || !now.Before(w.expires) {
		w = &window{expires: now.Add(win)}
		r.wins[key] = w
	}
	w.count++
	return w.count <= limit, nil
}
