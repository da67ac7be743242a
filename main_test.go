package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadTransactions(t *testing.T) {
	dir := t.TempDir()

	raw := filepath.Join(dir, "raw.json")
	require.NoError(t, os.WriteFile(raw, []byte(`[{"amount":"Rp 99.000","status":"settlement","reference":"A"}]`), 0o600))
	txs, err := readTransactions(raw)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "A", txs[0].Reference)

	marked := filepath.Join(dir, "stdout.txt")
	require.NoError(t, os.WriteFile(marked, []byte("log line\n---JSON_START---\n[]\n---JSON_END---\n"), 0o600))
	txs, err = readTransactions(marked)
	require.NoError(t, err)
	require.Empty(t, txs)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"amount":1}`), 0o600))
	_, err = readTransactions(bad)
	require.Error(t, err)

	_, err = readTransactions(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
