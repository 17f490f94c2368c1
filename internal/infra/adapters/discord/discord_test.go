//go:build !integration

package discord

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"async-ask-bot/internal/domain/model"
	"async-ask-bot/internal/domain/ports/adapter"
)

type recorded struct {
	Method string
	Path   string
	Body   map[string]any
}

func fakeDiscord(t *testing.T, status int) (*httptest.Server, *[]recorded) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"message":"x"}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

var target = model.DeliveryTarget{
	Channel: model.ChannelDiscord,
	Address: "tok123",
	AckRef:  OriginalMessage,
}

func TestWebhookClient_PostMessage(t *testing.T) {
	srv, reqs := fakeDiscord(t, http.StatusOK)
	c := NewWebhookClient("app1", srv.URL, nil)

	err := c.PostMessage(context.Background(), target, "hello", model.Identity{Name: "alice", AvatarURL: "https://a/b.png"})
	if err != nil {
		t.Fatal(err)
	}
	got := (*reqs)[0]
	if got.Method != http.MethodPost || got.Path != "/webhooks/app1/tok123" {
		t.Fatalf("request = %s %s", got.Method, got.Path)
	}
	if got.Body["content"] != "hello" || got.Body["username"] != "alice" || got.Body["avatar_url"] != "https://a/b.png" {
		t.Fatalf("body = %v", got.Body)
	}
	if c.ContentLimit(target) != 2000 {
		t.Fatalf("limit = %d", c.ContentLimit(target))
	}
}

func TestWebhookClient_ErrorsCarryStatus(t *testing.T) {
	for _, tc := range []struct {
		status    int
		transient bool
	}{{404, false}, {400, false}, {429, true}, {502, true}} {
		srv, _ := fakeDiscord(t, tc.status)
		c := NewWebhookClient("app1", srv.URL, nil)
		err := c.PostMessage(context.Background(), target, "x", model.Identity{})
		var de *adapter.DeliveryError
		if !errors.As(err, &de) {
			t.Fatalf("%d: err = %v", tc.status, err)
		}
		if de.Status != tc.status || de.Transient() != tc.transient {
			t.Fatalf("%d: status=%d transient=%v", tc.status, de.Status, de.Transient())
		}
	}
}

func TestWebhookClient_Retract(t *testing.T) {
	srv, reqs := fakeDiscord(t, http.StatusNoContent)
	c := NewWebhookClient("app1", srv.URL, nil)
	if err := c.RetractAcknowledgement(context.Background(), target); err != nil {
		t.Fatal(err)
	}
	if r := (*reqs)[0]; r.Method != http.MethodDelete || r.Path != "/webhooks/app1/tok123/messages/@original" {
		t.Fatalf("request = %s %s", r.Method, r.Path)
	}

	noAck := target
	noAck.AckRef = ""
	if err := c.RetractAcknowledgement(context.Background(), noAck); err != nil || len(*reqs) != 1 {
		t.Fatalf("empty ack ref must not call discord: %v, %d calls", err, len(*reqs))
	}

	gone, _ := fakeDiscord(t, http.StatusNotFound)
	if err := NewWebhookClient("app1", gone.URL, nil).RetractAcknowledgement(context.Background(), target); err != nil {
		t.Fatalf("404 on retract should be ignored, got %v", err)
	}
}

func TestWebhookClient_EditOriginal(t *testing.T) {
	srv, reqs := fakeDiscord(t, http.StatusOK)
	c := NewWebhookClient("app1", srv.URL, nil)
	if err := c.EditOriginal(context.Background(), "tok123", "done"); err != nil {
		t.Fatal(err)
	}
	if r := (*reqs)[0]; r.Method != http.MethodPatch || r.Body["content"] != "done" {
		t.Fatalf("request = %+v", r)
	}
}

func TestVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	v, err := NewVerifier(hex.EncodeToString(pub))
	if err != nil {
		t.Fatal(err)
	}
	body := []byte(`{"type":1}`)
	ts := "1700000000"
	sig := hex.EncodeToString(ed25519.Sign(priv, append([]byte(ts), body...)))

	if err := v.Verify(sig, ts, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := v.Verify(sig, ts, []byte(`{"type":2}`)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered body err = %v", err)
	}
	if err := v.Verify("zz", ts, body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("garbage signature err = %v", err)
	}
	if _, err := NewVerifier("abcd"); err == nil {
		t.Fatal("short key must be rejected")
	}
}

func TestInteraction_Accessors(t *testing.T) {
	var in Interaction
	raw := `{"type":2,"token":"t","data":{"name":"ask","options":[{"name":"question","type":3,"value":"What time is it?"}]},
		"member":{"nick":"Ali","user":{"id":"42","username":"alice","avatar":"abc"}},"locale":"ja"}`
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		t.Fatal(err)
	}
	if q := in.StringOption("question"); q != "What time is it?" {
		t.Fatalf("question = %q", q)
	}
	u := in.Invoker()
	if u.ID != "42" || u.DisplayName() != "Ali" {
		t.Fatalf("invoker = %+v", u)
	}
	if u.AvatarURL() != "https://cdn.discordapp.com/avatars/42/abc.png" {
		t.Fatalf("avatar = %s", u.AvatarURL())
	}
	if in.StringOption("missing") != "" {
		t.Fatal("missing option must be empty")
	}
}

func TestRegisterCommands(t *testing.T) {
	var (
		gotPath, gotAuth string
		gotBody          []ApplicationCommand
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	scope, err := RegisterCommands(context.Background(), srv.URL, "app1", "bot-token", "g1", []ApplicationCommand{AskCommand()})
	if err != nil {
		t.Fatal(err)
	}
	if scope != "guild (g1)" || gotPath != "/applications/app1/guilds/g1/commands" || gotAuth != "Bot bot-token" {
		t.Fatalf("scope=%s path=%s auth=%s", scope, gotPath, gotAuth)
	}
	if len(gotBody) != 1 || gotBody[0].Name != "ask" || !gotBody[0].Options[0].Required {
		t.Fatalf("body = %+v", gotBody)
	}

	scope, _ = RegisterCommands(context.Background(), srv.URL, "app1", "bot-token", "", []ApplicationCommand{AskCommand()})
	if scope != "global" || gotPath != "/applications/app1/commands" {
		t.Fatalf("global scope=%s path=%s", scope, gotPath)
	}
}
