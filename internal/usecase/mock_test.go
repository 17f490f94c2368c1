//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
	"async-ask-bot/internal/usecase"
)

// -----------------------------
// Engine
// -----------------------------

// MockEngine replays GenerateFunc and records every request it receives.
type MockEngine struct {
	mu       sync.Mutex
	Requests []adapter.GenerateRequest
	Format   string

	GenerateFunc func(ctx context.Context, call int, req adapter.GenerateRequest) (adapter.Output, error)
}

var _ adapter.Engine = (*MockEngine)(nil)

func (m *MockEngine) Name() string { return "mock" }

func (m *MockEngine) ResponseFormat() string {
	if m.Format == "" {
		return "text"
	}
	return m.Format
}

func (m *MockEngine) Generate(ctx context.Context, req adapter.GenerateRequest) (adapter.Output, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	call := len(m.Requests)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, call, req)
}

func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// -----------------------------
// Delivery
// -----------------------------

type Post struct {
	Target  model.DeliveryTarget
	Content string
	As      model.Identity
}

type MockDelivery struct {
	mu        sync.Mutex
	Posts     []Post
	Retracted int
	Limit     int

	PostFunc    func(ctx context.Context, n int, content string) error
	RetractFunc func(ctx context.Context) error
}

var _ adapter.Delivery = (*MockDelivery)(nil)

func (m *MockDelivery) PostMessage(ctx context.Context, target model.DeliveryTarget, content string, as model.Identity) error {
	m.mu.Lock()
	n := len(m.Posts) + 1
	m.mu.Unlock()
	if m.PostFunc != nil {
		if err := m.PostFunc(ctx, n, content); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Posts = append(m.Posts, Post{Target: target, Content: content, As: as})
	m.mu.Unlock()
	return nil
}

func (m *MockDelivery) RetractAcknowledgement(ctx context.Context, _ model.DeliveryTarget) error {
	m.mu.Lock()
	m.Retracted++
	m.mu.Unlock()
	if m.RetractFunc != nil {
		return m.RetractFunc(ctx)
	}
	return nil
}

func (m *MockDelivery) ContentLimit(model.DeliveryTarget) int { return m.Limit }

// -----------------------------
// Generator, dispatcher, observer
// -----------------------------

type MockGenerator struct {
	mu           sync.Mutex
	Calls        int
	GenerateFunc func(ctx context.Context, question string) (string, error)
}

func (m *MockGenerator) Generate(ctx context.Context, question string) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	return m.GenerateFunc(ctx, question)
}

type MockDispatcher struct {
	mu  sync.Mutex
	IDs []string
	Err error
}

func (m *MockDispatcher) Dispatch(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IDs = append(m.IDs, jobID)
	return m.Err
}

// MockHandoff records the payloads intake hands over.
type MockHandoff struct {
	MockDispatcher
	Params []usecase.StartParams
}

func (m *MockHandoff) Handoff(params usecase.StartParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Params = append(m.Params, params)
	return m.Err
}

type MockObserver struct {
	mu       sync.Mutex
	Jobs     []string
	Steps    map[string]string
	Rounds   []int
	Degraded []bool
	Tools    []string
}

func (m *MockObserver) JobFinished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Jobs = append(m.Jobs, status)
}

func (m *MockObserver) StepFinished(step, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Steps == nil {
		m.Steps = map[string]string{}
	}
	m.Steps[step] = outcome
}

func (m *MockObserver) GenerationFinished(rounds int, degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rounds = append(m.Rounds, rounds)
	m.Degraded = append(m.Degraded, degraded)
}

func (m *MockObserver) ToolCalled(tool, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tools = append(m.Tools, tool+":"+outcome)
}

// -----------------------------
// helpers
// -----------------------------

func toolCall(id, name, args string) adapter.ToolCall {
	return adapter.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func lastTurn(req adapter.GenerateRequest) adapter.Turn {
	return req.Turns[len(req.Turns)-1]
}
