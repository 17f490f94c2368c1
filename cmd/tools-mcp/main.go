// Command tools-mcp serves the answer-generation tools over MCP stdio.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/config"
	"async-ask-bot/internal/infra/mcp"
	"async-ask-bot/internal/tools"
)

var version = "dev"

func main() {
	cfgPath, dev := config.ParseFlags()
	// stdout carries the protocol; logs go to stderr
	log := zerolog.New(os.Stderr).With().Timestamp().Str("app", "tools-mcp").Logger()

	tz, weather := "Asia/Tokyo", tools.WeatherConfig{Language: "ja"}
	if cfg, err := config.LoadConfig(cfgPath, dev); err == nil {
		tz = cfg.Tools.Timezone
		weather = tools.WeatherConfig{
			GeocodingURL: cfg.Tools.GeocodingURL,
			ForecastURL:  cfg.Tools.ForecastURL,
			Language:     cfg.Tools.WeatherLang,
			Timeout:      cfg.Tools.Timeout,
		}
	} else {
		log.Warn().Err(err).Msg("config not loaded, using tool defaults")
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatal().Err(err).Msg("timezone")
	}

	registry, err := tools.Builtin(loc, weather)
	if err != nil {
		log.Fatal().Err(err).Msg("tools")
	}
	srv, err := mcp.New(registry, version, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("mcp server")
	}
	if err := srv.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("mcp stdio")
	}
}
