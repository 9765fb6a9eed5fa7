package models

import "time"

type EquityUpdateRequest struct {
	Equity *float64 `json:"equity" validate:"required,gte=0"`
}

type SamplesRequest struct {
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
	Since string `query:"since" json:"since"`
}

type OutcomeRequest struct {
	SourceID   string   `json:"source_id" validate:"required"`
	Correct    *bool    `json:"correct" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"required,gte=0,lte=100"`
}

type EmitSignalRequest struct {
	ID         string    `json:"id" validate:"omitempty,max=64"`
	Symbol     string    `json:"symbol" validate:"required,max=32"`
	Action     Action    `json:"action" validate:"required,oneof=BUY SELL HOLD"`
	EntryPrice float64   `json:"entry_price" validate:"gte=0"`
	StopLoss   float64   `json:"stop_loss" validate:"gte=0"`
	TakeProfit float64   `json:"take_profit" validate:"gte=0"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=100"`
	Timestamp  time.Time `json:"timestamp"`
}

func (r EmitSignalRequest) Signal() Signal {
	return Signal{
		ID:         r.ID,
		Symbol:     r.Symbol,
		Action:     r.Action,
		EntryPrice: r.EntryPrice,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		Confidence: r.Confidence,
		Timestamp:  r.Timestamp,
	}
}

type VerifyBatchRequest struct {
	Signals []Signal `json:"signals" validate:"required,min=1,max=1000"`
}

type QuoteRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,max=32"`
}

// HashResponse is returned by the hash endpoint.
type HashResponse struct {
	Hash        string `json:"hash"`
	HashVersion int    `json:"hash_version"`
}

type VerifyBatchResponse struct {
	Results []VerificationResult `json:"results"`
	Valid   int                  `json:"valid"`
	Invalid int                  `json:"invalid"`
}
