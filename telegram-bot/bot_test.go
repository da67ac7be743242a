package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *ContactRegistry {
	t.Helper()
	r, err := NewContactRegistry(filepath.Join(t.TempDir(), "contacts.db"), "62")
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestContactRegistry_BindAndLookup(t *testing.T) {
	r := newRegistry(t)
	ctx := context.Background()

	phone, err := r.Bind(ctx, "+62 812-0000-1111", 42, "Sinta")
	require.NoError(t, err)
	require.Equal(t, "6281200001111", phone)

	chat, ok, err := r.ChatFor(ctx, "081200001111")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), chat)

	// повторная привязка перезаписывает чат
	_, err = r.Bind(ctx, "6281200001111", 77, "Sinta")
	require.NoError(t, err)
	chat, _, err = r.ChatFor(ctx, "6281200001111")
	require.NoError(t, err)
	require.Equal(t, int64(77), chat)

	_, ok, err = r.ChatFor(ctx, "0899")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.Bind(ctx, "n/a", 1, "")
	require.ErrorIs(t, err, errEmptyPhone)

	n, err := r.Unbind(ctx, 77)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	_, ok, err = r.ChatFor(ctx, "6281200001111")
	require.NoError(t, err)
	require.False(t, ok)
}

// fakeBilling – внутренний API сервиса биллинга для одного теста
type fakeBilling struct {
	mu        sync.Mutex
	pending   []models.Notification
	confirmed map[string]map[string]string
}

func (f *fakeBilling) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/internal/notifications/pending":
			_ = json.NewEncoder(w).Encode(map[string]any{"notifications": f.pending})
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/confirm"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/internal/notifications/"), "/confirm")
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.confirmed[id] = body
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type fakeSender struct {
	sent map[int64][]string
	err  error
}

func (s *fakeSender) SendText(chatID int64, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func TestDeliverer_Process(t *testing.T) {
	billing := &fakeBilling{
		pending: []models.Notification{
			{ID: "n1", Phone: "6281200001111", Message: "Pembayaran diterima", Status: models.NotificationPending},
			{ID: "n2", Phone: "6289999999999", Message: "tidak ada chat", Status: models.NotificationPending},
		},
		confirmed: map[string]map[string]string{},
	}
	srv := httptest.NewServer(billing.handler(t))
	defer srv.Close()

	contacts := newRegistry(t)
	_, err := contacts.Bind(context.Background(), "081200001111", 42, "Sinta")
	require.NoError(t, err)

	sender := &fakeSender{sent: map[int64][]string{}}
	d := NewDeliverer(NewOutboxClient(srv.URL, "s3cret"), contacts, sender, 20)

	stats, err := d.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, DeliveryStats{Sent: 1, Failed: 1}, stats)
	require.Equal(t, []string{"Pembayaran diterima"}, sender.sent[42])

	require.Equal(t, "sent", billing.confirmed["n1"]["status"])
	require.Equal(t, "failed", billing.confirmed["n2"]["status"])
	require.Equal(t, errNoChat.Error(), billing.confirmed["n2"]["error"])
}

func TestDeliverer_SendErrorMarksFailed(t *testing.T) {
	billing := &fakeBilling{
		pending:   []models.Notification{{ID: "n1", Phone: "0812", Message: "x"}},
		confirmed: map[string]map[string]string{},
	}
	srv := httptest.NewServer(billing.handler(t))
	defer srv.Close()

	contacts := newRegistry(t)
	_, err := contacts.Bind(context.Background(), "0812", 5, "")
	require.NoError(t, err)

	d := NewDeliverer(NewOutboxClient(srv.URL, "s3cret"), contacts, &fakeSender{err: errors.New("Forbidden: bot was blocked by the user")}, 20)
	stats, err := d.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Failed)
	require.Contains(t, billing.confirmed["n1"]["error"], "blocked")
}

func TestDeliverer_UnauthorizedPoll(t *testing.T) {
	billing := &fakeBilling{confirmed: map[string]map[string]string{}}
	srv := httptest.NewServer(billing.handler(t))
	defer srv.Close()

	d := NewDeliverer(NewOutboxClient(srv.URL, "wrong"), newRegistry(t), &fakeSender{}, 20)
	_, err := d.Process(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")
}

func TestBotRouter_RequiresSecret(t *testing.T) {
	billing := &fakeBilling{confirmed: map[string]map[string]string{}}
	srv := httptest.NewServer(billing.handler(t))
	defer srv.Close()

	d := NewDeliverer(NewOutboxClient(srv.URL, "s3cret"), newRegistry(t), &fakeSender{sent: map[int64][]string{}}, 20)
	r := newBotRouter("s3cret", d)

	req := httptest.NewRequest(http.MethodPost, "/process-notifications", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/process-notifications", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"sent":0`)
}

func TestLoadBotConfig_PollInterval(t *testing.T) {
	for _, raw := range []string{"0s", "-1m", "soon"} {
		t.Setenv("BOT_POLL_INTERVAL", raw)
		require.Equal(t, 30*time.Second, loadBotConfig().PollInterval, raw)
	}

	t.Setenv("BOT_POLL_INTERVAL", "45s")
	require.Equal(t, 45*time.Second, loadBotConfig().PollInterval)
}
