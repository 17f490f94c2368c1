//go:build !integration

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func echoTool(name string, params ...Param) Tool {
	return Tool{
		Descriptor: Descriptor{Name: name, Description: "echo " + name, Params: params},
		Call: func(_ context.Context, args map[string]any) (string, error) {
			b, _ := json.Marshal(args)
			return string(b), nil
		},
	}
}

func TestRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	r, err := NewRegistry(echoTool("b"), echoTool("a"), echoTool("c"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "b,a,c" {
		t.Fatalf("order = %s, want b,a,c", got)
	}
	if specs := r.Specs(); len(specs) != 3 || specs[1].Name != "a" {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}

func TestRegistry_RejectsDuplicatesAndInvalidTools(t *testing.T) {
	r, _ := NewRegistry(echoTool("x"))
	if err := r.Register(echoTool("x")); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
	if err := r.Register(Tool{Descriptor: Descriptor{Name: "y"}}); !errors.Is(err, ErrInvalidTool) {
		t.Fatalf("expected ErrInvalidTool for missing callable, got %v", err)
	}
	if err := r.Register(echoTool("")); !errors.Is(err, ErrInvalidTool) {
		t.Fatalf("expected ErrInvalidTool for empty name, got %v", err)
	}
}

func TestRegistry_Invoke(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRegistry(
		echoTool("city", Param{Name: "cityName", Type: "string", Required: true}),
		echoTool("free"),
		Tool{
			Descriptor: Descriptor{Name: "fails"},
			Call:       func(context.Context, map[string]any) (string, error) { return "", boom },
		},
		Tool{
			Descriptor: Descriptor{Name: "panics"},
			Call:       func(context.Context, map[string]any) (string, error) { panic("bad") },
		},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		tool    string
		args    string
		want    string
		wantErr error
	}{
		{name: "valid", tool: "city", args: `{"cityName":"Tokyo"}`, want: `{"cityName":"Tokyo"}`},
		{name: "double encoded", tool: "city", args: `"{\"cityName\":\"Osaka\"}"`, want: `{"cityName":"Osaka"}`},
		{name: "empty args", tool: "free", args: ``, want: `{}`},
		{name: "null args", tool: "free", args: `null`, want: `{}`},
		{name: "unknown", tool: "nope", args: `{}`, wantErr: ErrUnknownTool},
		{name: "malformed", tool: "city", args: `{"cityName":`, wantErr: ErrInvalidArguments},
		{name: "missing required", tool: "city", args: `{}`, wantErr: ErrInvalidArguments},
		{name: "wrong type", tool: "city", args: `{"cityName":5}`, wantErr: ErrInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Invoke(ctx, tt.tool, json.RawMessage(tt.args))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	_, err = r.Invoke(ctx, "fails", nil)
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Tool != "fails" || !errors.Is(err, boom) {
		t.Fatalf("expected ExecutionError wrapping boom, got %v", err)
	}

	_, err = r.Invoke(ctx, "panics", nil)
	if !errors.As(err, &execErr) || execErr.Tool != "panics" {
		t.Fatalf("expected ExecutionError from panic, got %v", err)
	}
}

func TestDescriptor_JSONSchema(t *testing.T) {
	d := Descriptor{Params: []Param{
		{Name: "a", Type: "integer", Required: true, Enum: []string{"1"}},
		{Name: "b", Description: "defaults to string"},
	}}
	s := d.JSONSchema()
	props := s["properties"].(map[string]any)
	if props["b"].(map[string]any)["type"] != "string" {
		t.Fatalf("param without type should default to string: %v", props["b"])
	}
	req := s["required"].([]string)
	if len(req) != 1 || req[0] != "a" {
		t.Fatalf("required = %v", req)
	}
}

func TestBuiltin_RegistersBothTools(t *testing.T) {
	r, err := Builtin(time.UTC, WeatherConfig{})
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "getCurrentDateTime,getWeather" {
		t.Fatalf("tools = %s", got)
	}
}
