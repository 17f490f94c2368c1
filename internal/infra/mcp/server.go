// Package mcp exposes the answer-generation tools over the Model Context Protocol
// so the same tools the engine calls can be tried from any MCP client.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"async-ask-bot/internal/infra/metrics"
	"async-ask-bot/internal/tools"
)

type Server struct {
	mcpServer *mcpserver.MCPServer
	registry  *tools.Registry
	log       *zerolog.Logger
}

func New(registry *tools.Registry, version string, log *zerolog.Logger) (*Server, error) {
	if registry == nil {
		return nil, errors.New("tool registry is nil")
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "mcp").Logger()
	s := &Server{registry: registry, log: &l}
	s.mcpServer = mcpserver.NewMCPServer(
		"async-ask-bot",
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// ServeStdio blocks serving the stdio transport.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() error {
	for _, d := range s.registry.List() {
		schema, err := json.Marshal(d.JSONSchema())
		if err != nil {
			return fmt.Errorf("tool %s schema: %w", d.Name, err)
		}
		tool := mcplib.NewToolWithRawSchema(d.Name, describe(d), schema)
		s.mcpServer.AddTool(tool, s.handler(d.Name))
	}
	return nil
}

// describe folds the usage guidance into the MCP description.
func describe(d tools.Descriptor) string {
	var b strings.Builder
	b.WriteString(d.Description)
	if len(d.WhenToUse) > 0 {
		b.WriteString("\nUse when: ")
		b.WriteString(strings.Join(d.WhenToUse, "; "))
	}
	if len(d.WhenNotToUse) > 0 {
		b.WriteString("\nDo not use when: ")
		b.WriteString(strings.Join(d.WhenNotToUse, "; "))
	}
	return b.String()
}

func (s *Server) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		raw, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcplib.NewToolResultError("arguments are not valid JSON"), nil
		}
		out, err := s.registry.Invoke(ctx, name, raw)
		if err != nil {
			outcome := "error"
			if errors.Is(err, tools.ErrInvalidArguments) {
				outcome = "invalid_arguments"
			}
			metrics.Observer{}.ToolCalled(name, outcome)
			s.log.Warn().Err(err).Str("tool", name).Msg("mcp tool call failed")
			return mcplib.NewToolResultError(err.Error()), nil
		}
		metrics.Observer{}.ToolCalled(name, "ok")
		return mcplib.NewToolResultText(out), nil
	}
}
