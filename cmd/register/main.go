// Command register publishes the /ask command to Discord and, when a bot token
// is set, to Telegram. Credentials come from the environment, .env or .dev.vars.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"async-ask-bot/internal/config"
	"async-ask-bot/internal/infra/adapters/discord"
	tele "async-ask-bot/internal/infra/adapters/telegram"
)

func main() {
	baseURL := flag.String("discord-api", discord.DefaultAPIBaseURL, "Discord API base URL")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	config.LoadDotEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	token := os.Getenv("DISCORD_TOKEN")
	appID := os.Getenv("DISCORD_APPLICATION_ID")
	guildID := os.Getenv("DISCORD_GUILD_ID")
	if token == "" || appID == "" {
		log.Fatal().Msg("DISCORD_TOKEN and DISCORD_APPLICATION_ID must be set")
	}

	scope, err := discord.RegisterCommands(ctx, *baseURL, appID, token, guildID, []discord.ApplicationCommand{discord.AskCommand()})
	if err != nil {
		log.Fatal().Err(err).Msg("discord registration failed")
	}
	log.Info().Str("scope", scope).Msg("discord commands registered")

	tgToken := os.Getenv("TELEGRAM_TOKEN")
	if tgToken == "" {
		return
	}
	bot, err := tele.NewBotAPI(tgToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram login failed")
	}
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "ask", Description: discord.AskCommand().Description},
		tgbotapi.BotCommand{Command: "help", Description: "How to use this bot"},
	)
	if _, err := bot.Request(cmds); err != nil {
		log.Fatal().Err(err).Msg("telegram setMyCommands failed")
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram commands registered")
}
