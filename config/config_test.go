package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "")
	t.Setenv("SUCCESS_MARKERS", "")
	t.Setenv("EXTRACTOR_CMD", "")

	cfg := Load()
	require.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	require.Equal(t, 2*time.Minute, cfg.ExtractorTimeout)
	require.Equal(t, []string{"settlement", "success"}, cfg.SuccessMarkers)
	require.Equal(t, []string{"node", "scripts/extract-mutations.js"}, cfg.ExtractorCmd)
	require.Equal(t, int64(50000), cfg.MinPayout)
}

func TestLoad_NonPositiveDurationsFallBack(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "0s")
	t.Setenv("EXTRACTOR_TIMEOUT", "-5m")
	t.Setenv("OUTBOX_PING_INTERVAL", "0")
	t.Setenv("CLOUD_MSG_TIMEOUT", "garbage")

	cfg := Load()
	require.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	require.Equal(t, 2*time.Minute, cfg.ExtractorTimeout)
	require.Equal(t, 15*time.Second, cfg.OutboxPingInterval)
	require.Equal(t, 15*time.Second, cfg.CloudMsgTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "90s")
	t.Setenv("SUCCESS_MARKERS", " paid , settlement ,,")
	t.Setenv("EXTRACTOR_CMD", "node scripts/x.js --headless")
	t.Setenv("MIN_PAYOUT", "75000")

	cfg := Load()
	require.Equal(t, 90*time.Second, cfg.ReconcileInterval)
	require.Equal(t, []string{"paid", "settlement"}, cfg.SuccessMarkers)
	require.Equal(t, []string{"node", "scripts/x.js", "--headless"}, cfg.ExtractorCmd)
	require.Equal(t, int64(75000), cfg.MinPayout)
}
