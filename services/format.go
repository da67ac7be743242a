package services

import (
	"strconv"
	"strings"
	"time"
)

// NormalizePhone оставляет только цифры и приводит "08..." к "628...".
// "+62 812-3456" → "628123456"
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if strings.HasPrefix(phone, "0") && countryCode != "" {
		phone = countryCode + strings.TrimLeft(phone, "0")
	}
	return phone
}

// FormatRupiah – 150000 → "Rp 150.000"
func FormatRupiah(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}

func formatExpiry(exp *time.Time) string {
	if exp == nil {
		return "selamanya"
	}
	return exp.Format("02-01-2006")
}
