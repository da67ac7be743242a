package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Mighty-Nievl/mengundang-sub000/logging"
	"github.com/Mighty-Nievl/mengundang-sub000/models"

	"go.uber.org/zap"
)

const (
	PayloadStart = "---JSON_START---"
	PayloadEnd   = "---JSON_END---"
)

var (
	ErrNoPayload        = errors.New("extractor output has no JSON payload")
	ErrExtractorTimeout = errors.New("extractor timed out")
	ErrNoCommand        = errors.New("extractor command is empty")
)

// Extractor – источник транзакций мерчанта
type Extractor interface {
	Extract(ctx context.Context) ([]models.ExtractedTransaction, error)
}

// CommandExtractor запускает внешний скрипт, который логинится в кабинет
// мерчанта и печатает транзакции между маркерами в stdout
type CommandExtractor struct {
	command []string
	timeout time.Duration
	log     *zap.Logger
}

const DefaultExtractorTimeout = 2 * time.Minute

func NewCommandExtractor(command []string, timeout time.Duration) *CommandExtractor {
	if timeout <= 0 {
		timeout = DefaultExtractorTimeout
	}
	return &CommandExtractor{
		command: command,
		timeout: timeout,
		log:     logging.Named("extractor"),
	}
}

func (e *CommandExtractor) Extract(ctx context.Context) ([]models.ExtractedTransaction, error) {
	if len(e.command) == 0 {
		return nil, ErrNoCommand
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.command[0], e.command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		e.log.Error("⏱️ Экстрактор не уложился в таймаут",
			zap.Duration("timeout", e.timeout), zap.String("stderr", tail(stderr.String(), 2048)))
		return nil, fmt.Errorf("%w after %s", ErrExtractorTimeout, e.timeout)
	}
	if err != nil {
		e.log.Error("❌ Экстрактор завершился с ошибкой",
			zap.Error(err), zap.String("stderr", tail(stderr.String(), 2048)))
		return nil, fmt.Errorf("run extractor: %w", err)
	}

	txs, err := ParsePayload(stdout.Bytes())
	if err != nil {
		e.log.Error("❌ Не удалось разобрать вывод экстрактора",
			zap.Error(err), zap.String("stderr", tail(stderr.String(), 2048)))
		return nil, err
	}

	e.log.Info("📥 Транзакции получены", zap.Int("count", len(txs)), zap.Duration("took", time.Since(started)))
	return txs, nil
}

// ParsePayload вырезает JSON-массив между маркерами; весь остальной вывод скрипта игнорируется
func ParsePayload(out []byte) ([]models.ExtractedTransaction, error) {
	s := string(out)
	start := strings.Index(s, PayloadStart)
	if start < 0 {
		return nil, ErrNoPayload
	}
	rest := s[start+len(PayloadStart):]
	end := strings.Index(rest, PayloadEnd)
	if end < 0 {
		return nil, ErrNoPayload
	}

	payload := strings.TrimSpace(rest[:end])
	if payload == "" {
		return nil, ErrNoPayload
	}

	var txs []models.ExtractedTransaction
	if err := json.Unmarshal([]byte(payload), &txs); err != nil {
		return nil, fmt.Errorf("decode extractor payload: %w", err)
	}
	return txs, nil
}

// StaticExtractor отдаёт заранее загруженные транзакции (CLI reconcile --input)
type StaticExtractor []models.ExtractedTransaction

func (s StaticExtractor) Extract(ctx context.Context) ([]models.ExtractedTransaction, error) {
	return s, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
