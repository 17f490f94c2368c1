package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"async-ask-bot/internal/config"
	"async-ask-bot/internal/domain/model"
	aiAdapters "async-ask-bot/internal/infra/adapters/ai"
	"async-ask-bot/internal/infra/adapters/delivery"
	"async-ask-bot/internal/infra/adapters/discord"
	tele "async-ask-bot/internal/infra/adapters/telegram"
	httpapi "async-ask-bot/internal/infra/http"
	"async-ask-bot/internal/infra/i18n"
	"async-ask-bot/internal/infra/logging"
	"async-ask-bot/internal/infra/mcp"
	"async-ask-bot/internal/infra/metrics"
	"async-ask-bot/internal/infra/sched"
	"async-ask-bot/internal/infra/worker"
	"async-ask-bot/internal/tools"
	"async-ask-bot/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = ""
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath, dev := config.ParseFlags()
	cfg, err := config.LoadConfig(cfgPath, dev)
	if err != nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Str("path", cfgPath).Msg("config")
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Warn().Msg("development mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("storage")
	}
	defer st.Close()

	// ---- Generation ----
	engine, err := aiAdapters.NewEngine(ctx, cfg.AI, cfg.Runtime.Dev, log)
	if err != nil {
		log.Fatal().Err(err).Msg("ai engine")
	}
	registry, err := buildTools(cfg.Tools)
	if err != nil {
		log.Fatal().Err(err).Msg("tools")
	}
	persona, err := loadPersona(cfg.Persona)
	if err != nil {
		log.Fatal().Err(err).Msg("persona")
	}
	obs := metrics.Observer{}
	gen := usecase.NewGenerationLoop(engine, registry, usecase.GenerationOptions{
		Persona:   persona,
		MaxRounds: cfg.Pipeline.MaxRounds,
		Observer:  obs,
	}, log)

	// ---- Delivery ----
	texts, err := i18n.LoadBundle(i18n.LocalesFS)
	if err != nil {
		log.Fatal().Err(err).Msg("i18n")
	}
	router := delivery.NewRouter().Register(model.ChannelDebug, delivery.NewLogSink(log, 0))
	if cfg.Discord.ApplicationID != "" {
		router.Register(model.ChannelDiscord, discord.NewWebhookClient(cfg.Discord.ApplicationID, cfg.Discord.APIBaseURL, log))
	}
	var bot tele.BotAPI
	if cfg.Telegram.Enabled {
		api, err := tele.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram")
		}
		bot = api
		if cfg.Telegram.Username == "" {
			cfg.Telegram.Username = api.Self.UserName
		}
		router.Register(model.ChannelTelegram, tele.NewDelivery(bot, cfg.Identity.Name, log))
	}
	log.Info().Strs("channels", router.Channels()).Msg("delivery channels ready")

	// ---- Pipeline ----
	runner := usecase.NewStepRunner(st.steps, usecase.RetryPolicy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BaseDelay:   cfg.Pipeline.BaseDelay,
		MaxDelay:    cfg.Pipeline.MaxDelay,
		StepTimeout: cfg.Pipeline.StepTimeout,
	}, obs, log)
	pipeline := usecase.NewJobPipeline(st.jobs, runner, gen, router, st.locker, usecase.PipelineConfig{
		LockTTL: cfg.Pipeline.LockTTL,
		SystemIdentity: model.Identity{
			Name:      cfg.Identity.Name,
			AvatarURL: cfg.Identity.AvatarURL,
		},
	}, obs, log)

	pool := worker.NewPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, log)
	pool.Start(ctx)
	dispatcher := worker.NewJobDispatcher(pool, pipeline, log)

	sweeper := sched.NewJobSweeper(cfg.Pipeline.SweepInterval, cfg.Pipeline.SweepMinAge, cfg.Pipeline.SweepBatch, st.jobs, dispatcher, log)
	go func() { _ = sweeper.Run(ctx) }()

	intake := usecase.NewIntakeUseCase(st.jobs, dispatcher, st.limiter, usecase.IntakeConfig{
		RateLimit:  cfg.Intake.RateLimit,
		RateWindow: cfg.Intake.RateWindow,
	}, log)

	// ---- Telegram polling ----
	var poller *tele.Poller
	if bot != nil {
		poller, err = tele.NewPoller(bot, intake, texts, cfg.Telegram.Username, cfg.Telegram.Workers, log)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram poller")
		}
		go func() {
			if err := poller.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- HTTP ----
	var verifier *discord.Verifier
	if cfg.Discord.PublicKey != "" {
		verifier, err = discord.NewVerifier(cfg.Discord.PublicKey)
		if err != nil {
			log.Fatal().Err(err).Msg("discord public key")
		}
	}
	auth := httpapi.NewAuthManager(cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer, time.Hour)
	srv, err := httpapi.NewServer(httpapi.Options{
		Addr:            cfg.HTTP.Addr,
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		DebugEnabled:    cfg.HTTP.DebugEnabled || cfg.Runtime.Dev,
	}, intake, verifier, texts, auth, log)
	if err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
	if auth.Enabled() {
		toolServer, err := mcp.New(registry, version, log)
		if err != nil {
			log.Fatal().Err(err).Msg("mcp server")
		}
		srv.MountMCP(toolServer.HTTPHandler())
	}
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		log.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if poller != nil {
		poller.StopPolling()
	}
	cancel()
	pool.Stop()
	log.Info().Msg("bye")
}

func buildTools(cfg config.ToolsConfig) (*tools.Registry, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	return tools.Builtin(loc, tools.WeatherConfig{
		GeocodingURL: cfg.GeocodingURL,
		ForecastURL:  cfg.ForecastURL,
		Language:     cfg.WeatherLang,
		Timeout:      cfg.Timeout,
	})
}

func loadPersona(cfg config.PersonaConfig) (string, error) {
	if cfg.File == "" {
		return usecase.DefaultPersona(), nil
	}
	b, err := os.ReadFile(cfg.File)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
