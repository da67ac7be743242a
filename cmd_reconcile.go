package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Mighty-Nievl/mengundang-sub000/models"
	"github.com/Mighty-Nievl/mengundang-sub000/services"

	"github.com/spf13/cobra"
)

var reconcileInput string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run a single reconciliation pass",
	Long: `Одноразовая сверка.

Без --input запускает экстрактор (EXTRACTOR_CMD). С --input читает файл:
либо сохранённый вывод экстрактора с маркерами ---JSON_START--- / ---JSON_END---,
либо просто JSON-массив транзакций.

Examples:
  mengundang reconcile
  mengundang reconcile --input mutations.json`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVarP(&reconcileInput, "input", "i", "", "file with extractor output or a JSON array of transactions")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var extractor services.Extractor = services.NewCommandExtractor(cfg.ExtractorCmd, cfg.ExtractorTimeout)
	if reconcileInput != "" {
		txs, err := readTransactions(reconcileInput)
		if err != nil {
			return err
		}
		extractor = services.StaticExtractor(txs)
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := services.NewScheduler(extractor, a.engine, a.notifier, nil, cfg.ReconcileInterval, 0, false)
	report, err := scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func readTransactions(path string) ([]models.ExtractedTransaction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.Contains(raw, []byte(services.PayloadStart)) {
		return services.ParsePayload(raw)
	}
	var txs []models.ExtractedTransaction
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return txs, nil
}
