package main

import (
	"context"
	"errors"
	"sync"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/services"

	"go.uber.org/zap"
)

var errNoChat = errors.New("phone is not linked to a telegram chat")

// Sender – отправка текста в чат (tgbotapi в бою)
type Sender interface {
	SendText(chatID int64, text string) error
}

type Outbox interface {
	Pending(ctx context.Context, limit int) ([]models.Notification, error)
	Confirm(ctx context.Context, id string, status models.NotificationStatus, errText string) error
}

// Deliverer забирает очередь уведомлений и рассылает её по привязанным чатам
type Deliverer struct {
	outbox   Outbox
	contacts *ContactRegistry
	sender   Sender
	batch    int

	mu  sync.Mutex
	log *zap.Logger
}

type DeliveryStats struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

func NewDeliverer(outbox Outbox, contacts *ContactRegistry, sender Sender, batch int) *Deliverer {
	return &Deliverer{
		outbox:   outbox,
		contacts: contacts,
		sender:   sender,
		batch:    batch,
		log:      logging.Named("bot-delivery"),
	}
}

// Process разбирает одну пачку. Параллельный вызов (пинг во время опроса)
// сразу возвращает пустой результат, чтобы одно сообщение не ушло дважды
func (d *Deliverer) Process(ctx context.Context) (DeliveryStats, error) {
	var stats DeliveryStats
	if !d.mu.TryLock() {
		return stats, nil
	}
	defer d.mu.Unlock()

	list, err := d.outbox.Pending(ctx, d.batch)
	if err != nil {
		return stats, err
	}

	for _, n := range list {
		status, reason := models.NotificationSent, ""
		if err := d.deliver(ctx, n); err != nil {
			status, reason = models.NotificationFailed, err.Error()
			stats.Failed++
			d.log.Warn("уведомление не доставлено", zap.String("id", n.ID), zap.String("phone", n.Phone), zap.Error(err))
		} else {
			stats.Sent++
		}

		if err := d.outbox.Confirm(ctx, n.ID, status, reason); err != nil {
			// без подтверждения сообщение останется pending и уйдёт повторно
			d.log.Error("не удалось подтвердить уведомление", zap.String("id", n.ID), zap.Error(err))
		}
	}

	if len(list) > 0 {
		d.log.Info("📨 Очередь уведомлений обработана", zap.Int("sent", stats.Sent), zap.Int("failed", stats.Failed))
	}
	return stats, nil
}

func (d *Deliverer) deliver(ctx context.Context, n models.Notification) error {
	chatID, ok, err := d.contacts.ChatFor(ctx, n.Phone)
	if err != nil {
		return err
	}
	if !ok {
		return errNoChat
	}
	return d.sender.SendText(chatID, n.Message)
}

func normalizePhone(raw, countryCode string) string {
	return services.NormalizePhone(raw, countryCode)
}
