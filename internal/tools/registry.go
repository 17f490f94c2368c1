// Package tools holds the callable tools offered to the generation engine and the
// registry that resolves engine tool calls to them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"async-ask-bot/internal/domain/ports/adapter"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrInvalidTool      = errors.New("invalid tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// ExecutionError wraps a failure raised by a tool's callable.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Param is one named tool parameter.
type Param struct {
	Name        string
	Type        string // JSON schema type: string, number, integer, boolean
	Description string
	Required    bool
	Enum        []string
}

// Example shows the engine a query, what the tool returns for it and a good final answer.
type Example struct {
	Query      string
	ToolOutput string
	Answer     string
}

// Descriptor is the metadata half of a tool.
type Descriptor struct {
	Name         string
	Description  string
	Params       []Param
	WhenToUse    []string
	WhenNotToUse []string
	Examples     []Example
}

// JSONSchema renders the parameter list as a JSON schema object.
func (d Descriptor) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]any{"type": typ}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Func executes one tool call with decoded arguments and returns text for the engine.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a descriptor with its callable.
type Tool struct {
	Descriptor
	Call Func
}

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry maps tool names to tools. Listing order is registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
}

// NewRegistry registers tools in the given order.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{entries: make(map[string]*entry, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTool)
	}
	if t.Call == nil {
		return fmt.Errorf("%w: %q has no callable", ErrInvalidTool, t.Name)
	}
	schema, err := compileSchema(t.Name, t.JSONSchema())
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTool, t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name)
	}
	r.entries[t.Name] = &entry{tool: t, schema: schema}
	r.order = append(r.order, t.Name)
	return nil
}

// List returns the descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool.Descriptor)
	}
	return out
}

// Specs returns the engine-facing schemas in registration order.
func (r *Registry) Specs() []adapter.ToolSpec {
	list := r.List()
	out := make([]adapter.ToolSpec, 0, len(list))
	for _, d := range list {
		out = append(out, adapter.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.JSONSchema(),
		})
	}
	return out
}

// Invoke resolves name and runs the tool with rawArgs (a JSON object, or a JSON string
// containing one). It fails with ErrUnknownTool, ErrInvalidArguments or *ExecutionError.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (out string, err error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	args, err := decodeArguments(rawArgs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	if err := e.schema.Validate(any(args)); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = &ExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()
	out, err = e.tool.Call(ctx, args)
	if err != nil {
		return "", &ExecutionError{Tool: name, Err: err}
	}
	return out, nil
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	// Some engines double-encode the argument object as a JSON string.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		if inner == "" {
			return map[string]any{}, nil
		}
		raw = json.RawMessage(inner)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	id := "inmemory://tools/" + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return compiler.Compile(id)
}

// Builtin returns a registry holding getCurrentDateTime and getWeather.
func Builtin(loc *time.Location, weather WeatherConfig) (*Registry, error) {
	return NewRegistry(
		NewDateTimeTool(loc, time.Now),
		NewWeatherTool(weather),
	)
}
