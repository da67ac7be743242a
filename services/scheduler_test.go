package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/internal/testutil"
	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"github.com/stretchr/testify/require"
)

// blockingExtractor держит прогон, пока тест не закроет release
type blockingExtractor struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingExtractor) Extract(ctx context.Context) ([]models.ExtractedTransaction, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	return nil, nil
}

type failingExtractor struct{}

func (failingExtractor) Extract(ctx context.Context) ([]models.ExtractedTransaction, error) {
	return nil, errors.New("login page changed")
}

func TestScheduler_RunOnceReconciles(t *testing.T) {
	store := testutil.NewMemStore()
	engine, _, _ := newTestEngine(store)
	_, o := seedBuyer(store, models.PlanRegular, 99000)

	s := NewScheduler(StaticExtractor{txn("99000", "settlement", "R")}, engine, nil, nil, time.Hour, 0, false)
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{o.ID}, report.Approved)
	require.False(t, s.Running())
}

func TestScheduler_RunsDoNotOverlap(t *testing.T) {
	ext := &blockingExtractor{started: make(chan struct{}, 1), release: make(chan struct{})}
	engine, _, _ := newTestEngine(testutil.NewMemStore())
	s := NewScheduler(ext, engine, nil, nil, time.Hour, 0, false)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-ext.started
	require.True(t, s.Running())

	_, err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrRunInProgress)

	close(ext.release)
	require.NoError(t, <-done)
	require.Equal(t, int32(1), ext.calls.Load())
	require.False(t, s.Running())
}

func TestScheduler_ExtractFailureAlertsAdmin(t *testing.T) {
	engine, _, _ := newTestEngine(testutil.NewMemStore())
	notifier := &recordingNotifier{}
	s := NewScheduler(failingExtractor{}, engine, notifier, nil, time.Hour, 0, false)

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, notifier.adminMessages(), 1)
	require.Contains(t, notifier.adminMessages()[0], "login page changed")
}

func TestScheduler_StartRunsOnStartAndPings(t *testing.T) {
	var pings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pings.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testutil.NewMemStore()
	engine, _, _ := newTestEngine(store)
	_, o := seedBuyer(store, models.PlanVIP, 150000)

	s := NewScheduler(StaticExtractor{txn("150000", "success", "P")}, engine, nil,
		NewOutboxPinger(srv.URL, "s3cret"), time.Hour, 20*time.Millisecond, true)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return store.Order(o.ID).Status == models.OrderApproved && pings.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestScheduler_NonPositiveIntervalFallsBackToDefault(t *testing.T) {
	engine, _, _ := newTestEngine(testutil.NewMemStore())

	for _, interval := range []time.Duration{0, -5 * time.Minute} {
		s := NewScheduler(StaticExtractor{}, engine, nil, NewOutboxPinger("http://127.0.0.1:1", ""), interval, 0, false)
		require.Equal(t, DefaultReconcileInterval, s.interval)

		// тикер с нулевым интервалом паникует в горутине; здесь старт и стоп проходят штатно
		s.Start(context.Background())
		s.Stop()
	}
}

func TestOutboxPinger_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewOutboxPinger(srv.URL, "").Ping(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}
