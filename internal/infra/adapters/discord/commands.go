package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const optionTypeString = 3

// Names of the /ask command and its only option.
const (
	AskCommandName = "ask"
	AskOptionName  = "question"
)

type ApplicationCommandOption struct {
	Type        int    `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required,omitempty"`
}

type ApplicationCommand struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Options     []ApplicationCommandOption `json:"options,omitempty"`
}

// AskCommand is the /ask slash command.
func AskCommand() ApplicationCommand {
	return ApplicationCommand{
		Name:        AskCommandName,
		Description: "Ask the AI a question",
		Options: []ApplicationCommandOption{{
			Type:        optionTypeString,
			Name:        AskOptionName,
			Description: "Your question for the AI",
			Required:    true,
		}},
	}
}

// RegisterCommands bulk-overwrites the application's commands, in one guild
// when guildID is set, globally otherwise. It returns the scope it used.
func RegisterCommands(ctx context.Context, baseURL, appID, botToken, guildID string, cmds []ApplicationCommand) (string, error) {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	url := fmt.Sprintf("%s/applications/%s/commands", baseURL, appID)
	scope := "global"
	if guildID != "" {
		url = fmt.Sprintf("%s/applications/%s/guilds/%s/commands", baseURL, appID, guildID)
		scope = "guild (" + guildID + ")"
	}
	b, err := json.Marshal(cmds)
	if err != nil {
		return scope, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(b))
	if err != nil {
		return scope, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+botToken)

	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		return scope, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return scope, fmt.Errorf("discord register %s commands: %d - %s", scope, resp.StatusCode, raw)
	}
	return scope, nil
}
