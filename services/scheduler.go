package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/monitoring"

	"go.uber.org/zap"
)

var ErrRunInProgress = errors.New("reconciliation run already in progress")

const DefaultReconcileInterval = 5 * time.Minute

// Reconciler – движок сверки (Engine)
type Reconciler interface {
	Run(ctx context.Context, txs []models.ExtractedTransaction) (*Report, error)
}

// OutboxPinger будит локального бота, чтобы тот забрал очередь уведомлений
type OutboxPinger struct {
	url    string
	secret string
	client *http.Client
}

func NewOutboxPinger(url, secret string) *OutboxPinger {
	return &OutboxPinger{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *OutboxPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, nil)
	if err != nil {
		return err
	}
	if p.secret != "" {
		req.Header.Set("Authorization", "Bearer "+p.secret)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("outbox ping: status %d", resp.StatusCode)
	}
	return nil
}

// Scheduler – два независимых тикера: сверка (не пересекается сама с собой)
// и пинг outbox (без защиты, запросы идемпотентны)
type Scheduler struct {
	extractor    Extractor
	engine       Reconciler
	notifier     Notifier
	pinger       *OutboxPinger
	interval     time.Duration
	pingInterval time.Duration
	runOnStart   bool

	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *zap.Logger
}

// NewScheduler – неположительный interval заменяется на DefaultReconcileInterval,
// неположительный pingInterval отключает пинг outbox
func NewScheduler(extractor Extractor, engine Reconciler, notifier Notifier, pinger *OutboxPinger, interval, pingInterval time.Duration, runOnStart bool) *Scheduler {
	log := logging.Named("scheduler")
	if interval <= 0 {
		log.Warn("⚠️ Некорректный интервал сверки, используется значение по умолчанию",
			zap.Duration("interval", interval), zap.Duration("default", DefaultReconcileInterval))
		interval = DefaultReconcileInterval
	}
	return &Scheduler{
		extractor:    extractor,
		engine:       engine,
		notifier:     notifier,
		pinger:       pinger,
		interval:     interval,
		pingInterval: pingInterval,
		runOnStart:   runOnStart,
		stopChan:     make(chan struct{}),
		log:          log,
	}
}

// Start запускает тикеры в фоне
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("⏰ Планировщик запущен",
		zap.Duration("reconcile_interval", s.interval),
		zap.Duration("ping_interval", s.pingInterval))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.runOnStart {
			s.tick(ctx)
		}
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if s.pinger == nil || s.pingInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.pinger.Ping(ctx); err != nil {
					s.log.Debug("outbox ping не прошёл", zap.Error(err))
				}
			case <-s.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает тикеры и ждёт завершения текущего прогона
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.log.Info("⏰ Планировщик остановлен")
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); errors.Is(err, ErrRunInProgress) {
		monitoring.ReconcileSkippedTicks.Inc()
		s.log.Info("⏭️ Предыдущая сверка ещё идёт, тик пропущен")
	}
}

// RunOnce – извлечение и сверка. Если прогон уже идёт, сразу возвращает
// ErrRunInProgress. Начатый прогон доводится до конца даже при отмене ctx
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	defer func() { monitoring.ReconcileDuration.Observe(time.Since(started).Seconds()) }()

	txs, err := s.extractor.Extract(ctx)
	if err != nil {
		monitoring.ReconcileRunsTotal.WithLabelValues("extract_error").Inc()
		s.log.Error("❌ Извлечение транзакций не удалось", zap.Error(err))
		s.alert(ctx, fmt.Sprintf("Rekonsiliasi gagal: ekstraksi transaksi error: %v", err))
		return nil, fmt.Errorf("extract transactions: %w", err)
	}

	report, err := s.engine.Run(ctx, txs)
	if err != nil {
		monitoring.ReconcileRunsTotal.WithLabelValues("engine_error").Inc()
		s.log.Error("❌ Сверка не удалась", zap.Error(err))
		s.alert(ctx, fmt.Sprintf("Rekonsiliasi gagal: %v", err))
		return nil, err
	}

	monitoring.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	if len(report.Failed) > 0 {
		s.alert(ctx, fmt.Sprintf("Rekonsiliasi %s: %d pesanan gagal disetujui", report.RunID, len(report.Failed)))
	}
	return report, nil
}

// Running – идёт ли сейчас прогон
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) alert(ctx context.Context, msg string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyAdmin(ctx, msg)
}
