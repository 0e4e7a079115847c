// Package main contains the entrypoint for the TPMB2 broadcast bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/jonboulle/clockwork"

	"github.com/tpmb/tpmb2/internal/bot"
	"github.com/tpmb/tpmb2/internal/bot/handlers"
	"github.com/tpmb/tpmb2/internal/bot/tasks"
	"github.com/tpmb/tpmb2/internal/config"
	"github.com/tpmb/tpmb2/internal/credentials"
	"github.com/tpmb/tpmb2/internal/database"
	"github.com/tpmb/tpmb2/internal/logger"
	"github.com/tpmb/tpmb2/internal/metrics"
	"github.com/tpmb/tpmb2/internal/resilience"
	"github.com/tpmb/tpmb2/internal/telegram"
	"github.com/tpmb/tpmb2/internal/timesource"
)

// pollTimeout is the long polling timeout for getUpdates.
const pollTimeout = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	creds := credentials.NewStore(store, keySource(cfg.Credentials), log)
	botCfg, err := bot.LoadBotConfig(ctx, creds, cfg, log)
	if err != nil {
		log.Error("Failed to load bot credentials", "error", err)
		return 1
	}

	tg, err := telegram.NewTelegramBot(botCfg.Token, log,
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithHTTPClient(pollTimeout, &http.Client{Timeout: pollTimeout + cfg.Telegram.RequestTimeout}),
	)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	clock := timesource.New(timesource.Options{
		Servers:      cfg.TimeSource.Servers,
		Timeout:      cfg.TimeSource.Timeout,
		MaxOffsetAge: cfg.TimeSource.MaxOffsetAge,
		Clock:        clockwork.NewRealClock(),
		Breaker:      resilience.NewBreaker(resilience.BreakerConfig{Name: "ntp", Logger: log}),
		Logger:       log,
	})

	m := metrics.New()
	loop := bot.NewLoop(log)
	core, err := bot.NewCore(ctx, bot.CoreDeps{
		Config:      cfg,
		BotConfig:   botCfg,
		BotUsername: me.Username,
		Store:       store,
		Credentials: creds,
		Outbound:    telegram.NewSender(tg, log),
		Time:        clock,
		Metrics:     m,
		Loop:        loop,
		Logger:      log,
	})
	if err != nil {
		log.Error("Failed to initialize bot core", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{Logger: log, Core: core}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllHandlers(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{Logger: log, Core: core, Store: store}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var metricsServer bot.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, m, log)
	}

	app := bot.NewBot(log, tg, loop, sched, metricsServer)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

func keySource(cfg config.CredentialsConfig) credentials.KeySource {
	if cfg.KeySource == "keyring" {
		return credentials.KeyringKeySource{Service: cfg.KeyringService, Account: cfg.KeyringAccount}
	}
	return credentials.FileKeySource{Path: cfg.KeyFile}
}
