// Локальный бот: доставляет уведомления из outbox сервиса биллинга в Telegram.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/middleware"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type botConfig struct {
	Token          string
	APIURL         string
	InternalSecret string
	Port           string
	ContactsDB     string
	CountryCode    string
	PollInterval   time.Duration
	Batch          int
	Debug          bool
}

func loadBotConfig() botConfig {
	poll, err := time.ParseDuration(getEnv("BOT_POLL_INTERVAL", "30s"))
	if err != nil || poll <= 0 {
		poll = 30 * time.Second
	}
	batch, err := strconv.Atoi(getEnv("BOT_BATCH", "20"))
	if err != nil || batch <= 0 {
		batch = 20
	}
	return botConfig{
		Token:          os.Getenv("TELEGRAM_BOT_TOKEN"),
		APIURL:         getEnv("BILLING_API_URL", "http://localhost:8080"),
		InternalSecret: os.Getenv("INTERNAL_SECRET"),
		Port:           getEnv("BOT_PORT", "3001"),
		ContactsDB:     getEnv("BOT_CONTACTS_DB", "data/contacts.db"),
		CountryCode:    getEnv("PHONE_COUNTRY_CODE", "62"),
		PollInterval:   poll,
		Batch:          batch,
		Debug:          os.Getenv("BOT_DEBUG") == "true",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// tgSender – Sender поверх Bot API
type tgSender struct {
	bot *tgbotapi.BotAPI
}

func (s tgSender) SendText(chatID int64, text string) error {
	_, err := s.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		_ = godotenv.Load()
	}
	cfg := loadBotConfig()
	if err := logging.InitLogger(!cfg.Debug, getEnv("LOG_LEVEL", "info")); err != nil {
		log.Fatalf("❌ logger: %v", err)
	}
	defer logging.Sync()
	logger := logging.Named("bot")

	if cfg.Token == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN не задан")
	}
	if cfg.InternalSecret == "" {
		logger.Fatal("INTERNAL_SECRET не задан")
	}

	contacts, err := NewContactRegistry(cfg.ContactsDB, cfg.CountryCode)
	if err != nil {
		logger.Fatal("не удалось открыть базу контактов", zap.Error(err))
	}
	defer contacts.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		logger.Fatal("не удалось подключиться к Telegram", zap.Error(err))
	}
	bot.Debug = cfg.Debug
	logger.Info("🤖 Бот запущен", zap.String("username", bot.Self.UserName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deliverer := NewDeliverer(NewOutboxClient(cfg.APIURL, cfg.InternalSecret), contacts, tgSender{bot: bot}, cfg.Batch)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newBotRouter(cfg.InternalSecret, deliverer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("📡 HTTP для пингов запущен", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	go pollOutbox(ctx, deliverer, cfg.PollInterval)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case update := <-updates:
			if update.Message != nil {
				handleMessage(ctx, bot, contacts, update.Message)
			}
		}
	}

	bot.StopReceivingUpdates()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("🛑 Бот остановлен")
}

// newBotRouter – POST /process-notifications, его дёргает планировщик сервиса биллинга
func newBotRouter(secret string, d *Deliverer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.InternalSecretMiddleware(secret, middleware.NewRateLimiter(10, 5*time.Minute)))
	r.POST("/process-notifications", func(c *gin.Context) {
		stats, err := d.Process(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	})
	return r
}

func pollOutbox(ctx context.Context, d *Deliverer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := d.Process(ctx); err != nil {
				logging.Named("bot").Warn("опрос outbox не удался", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func handleMessage(ctx context.Context, bot *tgbotapi.BotAPI, contacts *ContactRegistry, message *tgbotapi.Message) {
	logger := logging.Named("bot")

	if message.Contact != nil {
		// чужой контакт не привязываем
		if message.From != nil && message.Contact.UserID != 0 && message.Contact.UserID != message.From.ID {
			send(bot, message.Chat.ID, "Kirim kontak Anda sendiri dengan tombol di bawah.")
			return
		}
		phone, err := contacts.Bind(ctx, message.Contact.PhoneNumber, message.Chat.ID, message.Contact.FirstName)
		if err != nil {
			logger.Warn("не удалось привязать контакт", zap.Int64("chat_id", message.Chat.ID), zap.Error(err))
			send(bot, message.Chat.ID, "Nomor tidak dapat disimpan, coba lagi nanti.")
			return
		}
		logger.Info("📱 Контакт привязан", zap.String("phone", phone), zap.Int64("chat_id", message.Chat.ID))
		msg := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("✅ Nomor %s terhubung. Notifikasi pembayaran akan dikirim ke sini.", phone))
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		if _, err := bot.Send(msg); err != nil {
			logger.Warn("send", zap.Error(err))
		}
		return
	}

	switch message.Command() {
	case "start":
		msg := tgbotapi.NewMessage(message.Chat.ID,
			"👋 Halo!\n\nBagikan nomor telepon yang Anda pakai saat mendaftar, "+
				"agar konfirmasi pembayaran dan komisi referral dikirim ke chat ini.")
		msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(
			tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact("📱 Bagikan nomor")),
		)
		if _, err := bot.Send(msg); err != nil {
			logger.Warn("send", zap.Error(err))
		}
	case "stop":
		n, err := contacts.Unbind(ctx, message.Chat.ID)
		if err != nil {
			logger.Warn("не удалось отвязать контакт", zap.Error(err))
			return
		}
		if n > 0 {
			send(bot, message.Chat.ID, "Nomor dilepas. Notifikasi tidak lagi dikirim ke chat ini.")
		}
	}
}

func send(bot *tgbotapi.BotAPI, chatID int64, text string) {
	if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		logging.Named("bot").Warn("send", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
