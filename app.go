package main

import (
	"context"

	"github.com/Mighty-Nievl/mengundang-sub000/cache"
	"github.com/Mighty-Nievl/mengundang-sub000/config"
	"github.com/Mighty-Nievl/mengundang-sub000/database"
	"github.com/Mighty-Nievl/mengundang-sub000/integrations/cloudmsg"
	"github.com/Mighty-Nievl/mengundang-sub000/integrations/kafka"
	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/services"

	"go.uber.org/zap"
)

// app – собранные зависимости процесса
type app struct {
	store     *database.PgStore
	notifier  *services.NotificationRouter
	referrals *services.ReferralProcessor
	engine    *services.Engine
	cache     *cache.StatsCache
	producer  *kafka.Producer
}

// buildApp подключает БД и опциональную инфраструктуру (Redis, Kafka, облачный канал).
// Недоступный Redis или Kafka не мешает старту, только логируется
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logging.Named("app")

	if err := database.InitDB(ctx, cfg); err != nil {
		return nil, err
	}
	a := &app{store: database.NewPgStore(database.Pool)}

	var cloud services.CloudSender
	if client := cloudmsg.NewClient(cfg.CloudMsgURL, cfg.CloudMsgToken, cfg.CloudMsgTimeout); client.Configured() {
		cloud = client
	} else {
		log.Warn("⚠️ CLOUD_MSG_URL/CLOUD_MSG_TOKEN не заданы – облачный канал отключён")
	}
	a.notifier = services.NewNotificationRouter(cloud, a.store, cfg.AdminPhone, cfg.PhoneCountryCode)

	if cfg.RedisAddr != "" {
		c, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.StatsCacheTTL)
		if err != nil {
			log.Warn("Redis недоступен, статистика без кэша", zap.Error(err))
		} else {
			a.cache = c
		}
	}

	var events services.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewProducer(cfg.KafkaBrokers, 3)
		if err != nil {
			log.Warn("Kafka недоступна, события не публикуются", zap.Error(err))
		} else {
			a.producer = p
			events = p
		}
	}

	a.referrals = services.NewReferralProcessor(a.store, a.notifier, cfg.MinPayout)
	a.engine = services.NewEngine(a.store, services.NewPlanActivator(), a.referrals, a.notifier, events, cfg.SuccessMarkers)
	return a, nil
}

func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logging.Logger.Warn("kafka close", zap.Error(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		logging.Logger.Warn("redis close", zap.Error(err))
	}
	database.CloseDB()
}
