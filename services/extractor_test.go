package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	out := []byte(`launching browser...
logged in
---JSON_START---
[{"amount":"Rp 150.000","status":"Settlement","reference":" QR-1 ","timestamp":"2026-01-15 10:00"},
 {"amount":99000,"status":"success","reference":"","timestamp":""}]
---JSON_END---
done`)

	txs, err := ParsePayload(out)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, "QR-1", txs[0].Reference)

	amount, ok := txs[0].ParsedAmount()
	require.True(t, ok)
	require.Equal(t, int64(150000), amount)

	amount, ok = txs[1].ParsedAmount()
	require.True(t, ok)
	require.Equal(t, int64(99000), amount)
}

func TestParsePayload_Errors(t *testing.T) {
	_, err := ParsePayload([]byte("no markers here"))
	require.ErrorIs(t, err, ErrNoPayload)

	_, err = ParsePayload([]byte("---JSON_START--- [] "))
	require.ErrorIs(t, err, ErrNoPayload)

	_, err = ParsePayload([]byte("---JSON_START---   ---JSON_END---"))
	require.ErrorIs(t, err, ErrNoPayload)

	_, err = ParsePayload([]byte("---JSON_START--- {not json ---JSON_END---"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoPayload)
}

func TestParsePayload_EmptyList(t *testing.T) {
	txs, err := ParsePayload([]byte("---JSON_START---[]---JSON_END---"))
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestCommandExtractor_Run(t *testing.T) {
	e := NewCommandExtractor([]string{"sh", "-c",
		`echo "noise"; echo '---JSON_START---'; echo '[{"amount":"10","status":"success","reference":"a"}]'; echo '---JSON_END---'`,
	}, 10*time.Second)

	txs, err := e.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "a", txs[0].Reference)
}

func TestCommandExtractor_NonZeroExit(t *testing.T) {
	e := NewCommandExtractor([]string{"sh", "-c", "echo boom >&2; exit 3"}, 10*time.Second)

	_, err := e.Extract(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "exit status 3")
}

func TestCommandExtractor_Timeout(t *testing.T) {
	e := NewCommandExtractor([]string{"sleep", "5"}, 100*time.Millisecond)

	_, err := e.Extract(context.Background())
	require.ErrorIs(t, err, ErrExtractorTimeout)
}

func TestCommandExtractor_EmptyCommand(t *testing.T) {
	_, err := NewCommandExtractor(nil, time.Second).Extract(context.Background())
	require.ErrorIs(t, err, ErrNoCommand)
}

func TestCommandExtractor_NonPositiveTimeout(t *testing.T) {
	require.Equal(t, DefaultExtractorTimeout, NewCommandExtractor([]string{"true"}, 0).timeout)
	require.Equal(t, DefaultExtractorTimeout, NewCommandExtractor([]string{"true"}, -time.Second).timeout)

	e := NewCommandExtractor([]string{"sh", "-c", "echo '---JSON_START---[]---JSON_END---'"}, 0)
	txs, err := e.Extract(context.Background())
	require.NoError(t, err)
	require.Empty(t, txs)
}
