package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExtractedTransaction – строка из кабинета мерчанта. Не сохраняется,
// живёт один прогон сверки
type ExtractedTransaction struct {
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Timestamp string `json:"timestamp"`
}

// UnmarshalJSON принимает amount и строкой ("Rp 150.000"), и числом (150000)
func (t *ExtractedTransaction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount    json.RawMessage `json:"amount"`
		Status    string          `json:"status"`
		Reference string          `json:"reference"`
		Timestamp string          `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Status = raw.Status
	t.Reference = strings.TrimSpace(raw.Reference)
	t.Timestamp = raw.Timestamp
	t.Amount = ""
	if len(raw.Amount) == 0 || string(raw.Amount) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Amount, &s); err == nil {
		t.Amount = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.Amount, &n); err != nil {
		return err
	}
	t.Amount = n.String()
	return nil
}

// ParsedAmount убирает всё, кроме цифр: "Rp 150.000" → 150000.
// ok == false, если цифр нет или число не влезает в int64
func (t ExtractedTransaction) ParsedAmount() (int64, bool) {
	var b strings.Builder
	for _, r := range t.Amount {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsSuccess – статус без учёта регистра содержит один из маркеров успеха
func (t ExtractedTransaction) IsSuccess(markers []string) bool {
	status := strings.ToLower(t.Status)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(status, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
