//go:build !integration

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/domain"
	"async-ask-bot/internal/domain/ports/adapter"
)

var weatherSpec = adapter.ToolSpec{
	Name:        "getWeather",
	Description: "weather",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{"cityName": map[string]any{"type": "string"}},
		"required":   []string{"cityName"},
	},
}

func workersServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.HasPrefix(r.URL.Path, "/accounts/acc/ai/run/") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if seen != nil {
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, seen)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWorkersAI_NativeResponse(t *testing.T) {
	var seen map[string]any
	srv := workersServer(t, 200, `{"success":true,"result":{"response":"こんにちは"}}`, &seen)
	eng, err := NewWorkersAIAdapter("acc", "tok", srv.URL, "", "", 256)
	if err != nil {
		t.Fatal(err)
	}
	if eng.ResponseFormat() != "native" {
		t.Fatalf("format = %s", eng.ResponseFormat())
	}
	out, err := eng.Generate(context.Background(), adapter.GenerateRequest{
		Turns: []adapter.Turn{{Role: adapter.RoleSystem, Content: "sys"}, {Role: adapter.RoleUser, Content: "hi"}},
		Tools: []adapter.ToolSpec{weatherSpec},
	})
	if err != nil {
		t.Fatal(err)
	}
	n, ok := out.(adapter.NativeOutput)
	if !ok || n.Response != "こんにちは" {
		t.Fatalf("out = %#v", out)
	}
	if tools, _ := seen["tools"].([]any); len(tools) != 1 {
		t.Fatalf("tools sent = %v", seen["tools"])
	}
	if seen["max_tokens"].(float64) != 256 {
		t.Fatalf("max_tokens = %v", seen["max_tokens"])
	}
}

func TestWorkersAI_ToolChoiceNoneOmitsTools(t *testing.T) {
	var seen map[string]any
	srv := workersServer(t, 200, `{"success":true,"result":{"response":"ok"}}`, &seen)
	eng, _ := NewWorkersAIAdapter("acc", "tok", srv.URL, "", "", 0)
	_, err := eng.Generate(context.Background(), adapter.GenerateRequest{
		Turns:      []adapter.Turn{{Role: adapter.RoleUser, Content: "hi"}},
		Tools:      []adapter.ToolSpec{weatherSpec},
		ToolChoice: adapter.ToolChoiceNone,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := seen["tools"]; ok {
		t.Fatalf("tools must be omitted, got %v", seen["tools"])
	}
}

func TestWorkersAI_HTTPErrors(t *testing.T) {
	cases := []struct {
		status    int
		permanent bool
	}{
		{400, true},
		{404, true},
		{429, false},
		{503, false},
	}
	for _, tc := range cases {
		srv := workersServer(t, tc.status, `{"success":false}`, nil)
		eng, _ := NewWorkersAIAdapter("acc", "tok", srv.URL, "m", "text", 0)
		_, err := eng.Generate(context.Background(), adapter.GenerateRequest{Turns: []adapter.Turn{{Role: "user", Content: "x"}}})
		if err == nil {
			t.Fatalf("%d: expected error", tc.status)
		}
		if domain.IsPermanent(err) != tc.permanent {
			t.Fatalf("%d: permanent = %v, want %v", tc.status, domain.IsPermanent(err), tc.permanent)
		}
	}
}

func TestParseWorkersResult(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want func(adapter.Output) bool
	}{
		{"string", `"plain"`, func(o adapter.Output) bool {
			t, ok := o.(adapter.TextOutput)
			return ok && t.Text == "plain"
		}},
		{"native tool calls", `{"response":"","tool_calls":[{"name":"getWeather","arguments":{"cityName":"Tokyo"}}]}`, func(o adapter.Output) bool {
			n, ok := o.(adapter.NativeOutput)
			return ok && len(n.ToolCalls) == 1 && n.ToolCalls[0].Name == "getWeather" && string(n.ToolCalls[0].Arguments) == `{"cityName":"Tokyo"}`
		}},
		{"choices", `{"choices":[{"message":{"content":"hello","tool_calls":[{"id":"c1","function":{"name":"getCurrentDateTime","arguments":"{}"}}]}}]}`, func(o adapter.Output) bool {
			c, ok := o.(adapter.ChoiceListOutput)
			return ok && c.Choices[0].Message.Content == "hello" && c.Choices[0].Message.ToolCalls[0].ID == "c1"
		}},
		{"unknown object", `{"foo":1}`, func(o adapter.Output) bool {
			r, ok := o.(adapter.RawOutput)
			return ok && string(r.Body) == `{"foo":1}`
		}},
		{"empty", ``, func(o adapter.Output) bool {
			_, ok := o.(adapter.RawOutput)
			return ok
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if out := parseWorkersResult(json.RawMessage(tc.raw)); !tc.want(out) {
				t.Fatalf("unexpected output %#v", out)
			}
		})
	}
}

func TestOpenAIAdapter_ToolCallsAndChoice(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id":"cmpl-1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"getWeather","arguments":"{\"cityName\":\"Tokyo\"}"}}]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)
	}))
	defer srv.Close()

	eng, err := NewOpenAIAdapter("key", srv.URL, "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	out, err := eng.Generate(context.Background(), adapter.GenerateRequest{
		Turns: []adapter.Turn{
			{Role: adapter.RoleSystem, Content: "sys"},
			{Role: adapter.RoleUser, Content: "weather in Tokyo?"},
		},
		Tools:      []adapter.ToolSpec{weatherSpec},
		ToolChoice: adapter.ToolChoiceNone,
	})
	if err != nil {
		t.Fatal(err)
	}
	c, ok := out.(adapter.ChoiceListOutput)
	if !ok || len(c.Choices) != 1 {
		t.Fatalf("out = %#v", out)
	}
	calls := c.Choices[0].Message.ToolCalls
	if len(calls) != 1 || calls[0].ID != "call_1" || string(calls[0].Arguments) != `{"cityName":"Tokyo"}` {
		t.Fatalf("calls = %#v", calls)
	}
	if body["tool_choice"] != "none" {
		t.Fatalf("tool_choice = %v", body["tool_choice"])
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
		t.Fatalf("messages = %v", body["messages"])
	}
}

func TestOpenAIAdapter_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()
	eng, _ := NewOpenAIAdapter("key", srv.URL, "m", 0)
	_, err := eng.Generate(context.Background(), adapter.GenerateRequest{Turns: []adapter.Turn{{Role: "user", Content: "x"}}})
	if err == nil || !domain.IsPermanent(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
}

type slowEngine struct {
	cur, peak int32
}

func (s *slowEngine) Name() string           { return "slow" }
func (s *slowEngine) ResponseFormat() string { return "text" }
func (s *slowEngine) Generate(ctx context.Context, _ adapter.GenerateRequest) (adapter.Output, error) {
	n := atomic.AddInt32(&s.cur, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&s.cur, -1)
	return adapter.TextOutput{Text: "ok"}, nil
}

func TestLimitedAI_CapsConcurrency(t *testing.T) {
	inner := &slowEngine{}
	eng := NewLimitedAI(inner, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = eng.Generate(context.Background(), adapter.GenerateRequest{})
		}()
	}
	wg.Wait()
	if p := atomic.LoadInt32(&inner.peak); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
	if NewLimitedAI(inner, 0) != adapter.Engine(inner) {
		t.Fatal("zero limit must return inner engine")
	}
}

func TestLimitedAI_ContextCancelledWhileWaiting(t *testing.T) {
	eng := NewLimitedAI(&slowEngine{}, 1).(*limitedAI)
	eng.sem <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Generate(ctx, adapter.GenerateRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestNoopAdapter_EchoesQuestion(t *testing.T) {
	l := zerolog.Nop()
	eng := NewNoopAIAdapter(&l)
	eng.delay = 0
	out, err := eng.Generate(context.Background(), adapter.GenerateRequest{Turns: []adapter.Turn{
		{Role: adapter.RoleSystem, Content: "sys"},
		{Role: adapter.RoleUser, Content: "ping"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if txt := out.(adapter.TextOutput).Text; !strings.Contains(txt, "ping") {
		t.Fatalf("text = %q", txt)
	}
}

func TestEstimateTokens_NonZero(t *testing.T) {
	if EstimateTokens("gpt-4o-mini", "") != 0 {
		t.Fatal("empty text must be zero tokens")
	}
	if EstimateTokens("unknown-model", "hello world") <= 0 {
		t.Fatal("expected a positive estimate")
	}
}
