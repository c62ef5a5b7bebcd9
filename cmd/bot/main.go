package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/workwork-1/projectbotsalon/pkg/api/httpapi"
	"github.com/workwork-1/projectbotsalon/pkg/config"
	"github.com/workwork-1/projectbotsalon/pkg/domain/booking"
	"github.com/workwork-1/projectbotsalon/pkg/domain/bot/receiver"
	"github.com/workwork-1/projectbotsalon/pkg/domain/bot/sender"
	"github.com/workwork-1/projectbotsalon/pkg/domain/slots"
	"github.com/workwork-1/projectbotsalon/pkg/jobs"
	"github.com/workwork-1/projectbotsalon/pkg/logs"
	"github.com/workwork-1/projectbotsalon/pkg/metrics"
	"github.com/workwork-1/projectbotsalon/pkg/repository/memstore"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/repository/store"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

func main() {
	if err := run(); err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("salon bot failed")
	}
}

func run() error {
	// 1) Конфиг
	cfg, err := config.LoadConfig()
	if err != nil {
		return errs.New("failed to load config").Wrap(err)
	}

	// 2) Логгер
	logger := logs.New(cfg.Logging)

	// Контекст, завершающийся по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3) Хранилище
	repo, pinger, closeRepo, err := openRepo(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	metrics.Register()

	// 4) Движок записи
	engine := booking.New(repo, booking.Options{
		SlotStep:     cfg.Booking.SlotStepMinutes,
		PhoneRegion:  cfg.Booking.PhoneRegion,
		ScheduleDays: cfg.Booking.ScheduleDays,
		WorkStart:    slots.MustClock(cfg.Booking.WorkStart),
		WorkEnd:      slots.MustClock(cfg.Booking.WorkEnd),
		WorkDays:     cfg.Booking.Weekdays(),
	}, logger)

	if _, err := engine.SeedCatalog(ctx, catalogServices(cfg), catalogMasters(cfg)); err != nil {
		return errs.New("failed to seed catalog").Wrap(err)
	}

	rollover, err := jobs.NewRollover(engine, cfg.Booking.RolloverCron, logger)
	if err != nil {
		return err
	}
	rollover.Start(ctx)

	var wg sync.WaitGroup

	// 5) HTTP API
	if cfg.APIToken == "" && cfg.AdminToken == "" {
		logger.Warn().Msg("api_token and admin_token are empty: client and booking routes are open")
	}
	api := httpapi.New(engine, pinger, httpapi.Config{Port: cfg.HTTPPort, AdminToken: cfg.AdminToken, APIToken: cfg.APIToken}, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := api.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	// 6) Telegram
	if cfg.BotToken == "" {
		logger.Warn().Msg("TG_TOKEN is empty, telegram bot disabled")
		<-ctx.Done()
		wg.Wait()
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return errs.New("create bot api").Wrap(err)
	}
	bot.Debug = false
	logger.Info().Str("bot", bot.Self.UserName).Msg("authorized")

	if cfg.ChannelID != "" {
		notifier := sender.New(sender.ProcessorConfig{ChannelID: cfg.ChannelID}, logger, bot)
		engine.WithNotifier(notifier)
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Run(ctx)
		}()
	} else {
		logger.Info().Msg("TG_CHANNEL_ID is empty, channel notifications disabled")
	}

	var sessions receiver.SessionStore = receiver.NewStore()
	if cfg.Redis.Address != "" {
		rdb := receiver.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errs.New("failed to ping Redis").Arg("address", cfg.Redis.Address).Wrap(err)
		}
		sessions = receiver.NewRedisStore(rdb)
		logger.Info().Str("address", cfg.Redis.Address).Msg("chat sessions in redis")
	}

	handler := receiver.NewHandler(engine, bot, sessions, logger, cfg.Telegram.Admins)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 10
	updates := bot.GetUpdatesChan(u)

	// Горутина для корректного завершения
	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down bot")
		// Останавливаем лонг-поллинг -> канал updates закроется
		bot.StopReceivingUpdates()
	}()

	handler.Run(ctx, updates, cfg.WorkerCount)
	wg.Wait()
	logger.Info().Msg("bot stopped")
	return nil
}

func openRepo(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (model.Repo, httpapi.Pinger, func(), error) {
	if cfg.Storage.Driver == "memory" {
		logger.Warn().Msg("in-memory storage: data is lost on restart")
		return memstore.New(), nil, func() {}, nil
	}

	repo, err := store.NewRepo(ctx, cfg.Storage.PostgresDSN, cfg.Storage.MaxConns)
	if err != nil {
		return nil, nil, nil, errs.New("failed to connect to postgres").Wrap(err)
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, nil, nil, errs.New("failed to migrate schema").Wrap(err)
	}
	logger.Info().Msg("postgres connected")
	return repo, repo, repo.Close, nil
}

func catalogServices(cfg *config.Config) []model.Service {
	out := make([]model.Service, 0, len(cfg.Catalog.Services))
	for _, s := range cfg.Catalog.Services {
		out = append(out, model.Service{Name: s.Name, DurationMin: s.DurationMin, Price: s.Price})
	}
	return out
}

func catalogMasters(cfg *config.Config) []model.Master {
	out := make([]model.Master, 0, len(cfg.Catalog.Masters))
	for _, m := range cfg.Catalog.Masters {
		out = append(out, model.Master{Name: m.Name, Specialization: m.Specialization})
	}
	return out
}
