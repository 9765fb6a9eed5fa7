package models

import "time"

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is an emitted trading signal. Treat it as a value: IntegrityHash covers every other
// field, so any change after sealing, the timestamp included, is detectable.
type Signal struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Action        Action    `json:"action"`
	EntryPrice    float64   `json:"entry_price"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
	HashVersion   int       `json:"hash_version"`
	IntegrityHash string    `json:"integrity_hash,omitempty"`
}

// VerificationResult is the outcome of re-hashing a signal. A mismatch is a result, not an error.
type VerificationResult struct {
	SignalID   string    `json:"signal_id,omitempty"`
	IsValid    bool      `json:"is_valid"`
	VerifiedAt time.Time `json:"verified_at"`
	Error      string    `json:"error,omitempty"`
}
