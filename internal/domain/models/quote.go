package models

import "time"

// Quote is the payload returned by an upstream data source.
type Quote struct {
	Source    string    `json:"source"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
