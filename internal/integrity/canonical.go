package integrity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"SignalGuard/internal/domain/models"

	"github.com/shopspring/decimal"
)

// CurrentVersion is the canonical field set new signals are sealed with.
const CurrentVersion = 1

// canonicalV1 lists the fields hashed under version 1. Changing it requires a new version.
var canonicalV1 = []string{
	"action",
	"confidence",
	"entry_price",
	"hash_version",
	"id",
	"stop_loss",
	"symbol",
	"take_profit",
	"timestamp",
}

// Fields returns the canonical field names for version, or nil if the version is unknown.
func Fields(version int) []string {
	switch version {
	case 1:
		return append([]string(nil), canonicalV1...)
	}
	return nil
}

// formatFloat renders the shortest decimal that round-trips, never exponent notation.
func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func canonicalMap(s models.Signal, version int) (map[string]string, error) {
	switch version {
	case 1:
		return map[string]string{
			"action":       string(s.Action),
			"confidence":   formatFloat(s.Confidence),
			"entry_price":  formatFloat(s.EntryPrice),
			"hash_version": strconv.Itoa(version),
			"id":           s.ID,
			"stop_loss":    formatFloat(s.StopLoss),
			"symbol":       s.Symbol,
			"take_profit":  formatFloat(s.TakeProfit),
			"timestamp":    formatTime(s.Timestamp),
		}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
}

// Canonical returns the exact bytes that are hashed for s: a JSON object of string values with
// keys in sorted order and no HTML escaping.
func Canonical(s models.Signal, version int) ([]byte, error) {
	m, err := canonicalMap(s, version)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json writes map keys sorted
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode canonical fields: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
