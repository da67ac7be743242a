package services

import (
	"context"
	"errors"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/monitoring"

	"go.uber.org/zap"
)

var ErrCloudDisabled = errors.New("cloud channel disabled")

// CloudSender – синхронный облачный канал (cloudmsg.Client)
type CloudSender interface {
	Send(ctx context.Context, phone, text string) error
}

// Notifier – то, чем пользуются движок сверки, рефералы и планировщик
type Notifier interface {
	Notify(ctx context.Context, phone, message string, tier models.PlanTier) Delivery
	NotifyAdmin(ctx context.Context, message string) Delivery
}

// ChannelResult – итог одного канала. Каналы независимы, их результаты не сворачиваются в один bool
type ChannelResult struct {
	Attempted      bool   `json:"attempted"`
	Error          string `json:"error,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	Err            error  `json:"-"`
}

func (r ChannelResult) OK() bool {
	return r.Attempted && r.Err == nil
}

type Delivery struct {
	Phone  string        `json:"phone"`
	Cloud  ChannelResult `json:"cloud"`
	Outbox ChannelResult `json:"outbox"`
}

// Any – хотя бы один канал принял сообщение
func (d Delivery) Any() bool {
	return d.Cloud.OK() || d.Outbox.OK()
}

type NotificationRouter struct {
	cloud       CloudSender
	outbox      models.OutboxStore
	adminPhone  string
	countryCode string
	log         *zap.Logger
}

// NewNotificationRouter; cloud может быть nil – тогда облачные попытки завершаются ErrCloudDisabled
func NewNotificationRouter(cloud CloudSender, outbox models.OutboxStore, adminPhone, countryCode string) *NotificationRouter {
	return &NotificationRouter{
		cloud:       cloud,
		outbox:      outbox,
		adminPhone:  NormalizePhone(adminPhone, countryCode),
		countryCode: countryCode,
		log:         logging.Named("notify"),
	}
}

// Notify маршрутизирует сообщение:
//   - облако, если получатель – админ или тариф vvip;
//   - outbox, если получатель – админ или тариф не vvip.
//
// Админ получает оба канала, остальные – ровно один.
func (r *NotificationRouter) Notify(ctx context.Context, phone, message string, tier models.PlanTier) Delivery {
	dest := NormalizePhone(phone, r.countryCode)
	d := Delivery{Phone: dest}
	if dest == "" {
		r.log.Warn("пропуск уведомления: пустой номер", zap.String("tier", string(tier)))
		return d
	}

	isAdmin := r.adminPhone != "" && dest == r.adminPhone

	if isAdmin || tier.IsOfficial() {
		d.Cloud = r.sendCloud(ctx, dest, message)
	}
	if isAdmin || !tier.IsOfficial() {
		d.Outbox = r.enqueue(ctx, dest, message)
	}
	return d
}

// NotifyAdmin – сообщение на ADMIN_PHONE по обоим каналам
func (r *NotificationRouter) NotifyAdmin(ctx context.Context, message string) Delivery {
	if r.adminPhone == "" {
		r.log.Warn("ADMIN_PHONE не задан, уведомление администратору пропущено")
		return Delivery{}
	}
	return r.Notify(ctx, r.adminPhone, message, models.PlanFree)
}

func (r *NotificationRouter) sendCloud(ctx context.Context, phone, message string) ChannelResult {
	res := ChannelResult{Attempted: true}
	if r.cloud == nil {
		res.Err = ErrCloudDisabled
	} else {
		res.Err = r.cloud.Send(ctx, phone, message)
	}
	if res.Err != nil {
		res.Error = res.Err.Error()
		monitoring.NotificationsTotal.WithLabelValues("cloud", "error").Inc()
		r.log.Warn("облачный канал: ошибка отправки", zap.String("phone", phone), zap.Error(res.Err))
		return res
	}
	monitoring.NotificationsTotal.WithLabelValues("cloud", "ok").Inc()
	return res
}

func (r *NotificationRouter) enqueue(ctx context.Context, phone, message string) ChannelResult {
	res := ChannelResult{Attempted: true}
	n, err := r.outbox.EnqueueNotification(ctx, phone, message)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		monitoring.NotificationsTotal.WithLabelValues("outbox", "error").Inc()
		r.log.Error("outbox: не удалось поставить уведомление", zap.String("phone", phone), zap.Error(err))
		return res
	}
	res.NotificationID = n.ID
	monitoring.NotificationsTotal.WithLabelValues("outbox", "ok").Inc()
	return res
}
