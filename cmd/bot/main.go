// Command bot runs the music-generation bot core: the task poller, the
// delivery path, and the internal health/metrics listener.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cur1osus/sunobot/internal/cache"
	"github.com/cur1osus/sunobot/internal/config"
	"github.com/cur1osus/sunobot/internal/delivery"
	"github.com/cur1osus/sunobot/internal/poller"
	"github.com/cur1osus/sunobot/internal/repo"
	"github.com/cur1osus/sunobot/internal/services"
	"github.com/cur1osus/sunobot/internal/suno"
	"github.com/cur1osus/sunobot/internal/sysutil"
	"github.com/cur1osus/sunobot/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	log := sysutil.InitLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	redis := cache.NewRedis(cfg.RedisAddr, cfg.RedisDB)
	if err := redis.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect cache")
	}
	userCache := &cache.UserCache{Store: redis, TTL: cfg.CacheTTL}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("connect telegram")
	}
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	client := suno.NewClient(cfg.Suno)
	credits := &services.CreditService{DB: db, Cache: userCache}
	deliverer := &delivery.Deliverer{
		Bot:  bot,
		HTTP: &http.Client{Timeout: cfg.Poller.DeliveryWindow},
		Log:  log.With().Str("component", "delivery").Logger(),
	}

	metrics := poller.NewMetrics(prometheus.DefaultRegisterer)
	p := poller.New(db, client, deliverer, credits, cfg.Poller,
		log.With().Str("component", "poller").Logger(), metrics)

	go p.Run(ctx)
	log.Info().Dur("interval", cfg.Poller.Interval).Msg("poller started")

	router := web.NewRouter(db, redis)
	if err := web.Serve(ctx, cfg.AdminPort, router); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("ops listener stopped")
	}
	log.Info().Msg("shutdown complete")
}
