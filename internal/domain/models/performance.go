package models

import "time"

// PerformanceSample is one scored outcome for a data source.
type PerformanceSample struct {
	SourceID   string    `json:"source_id"`
	Correct    bool      `json:"correct"`
	Confidence float64   `json:"confidence"` // 0-100
	Timestamp  time.Time `json:"timestamp"`
}

// SourceReport summarizes a source's rolling window and its current weight.
type SourceReport struct {
	SourceID             string  `json:"source_id"`
	SampleSize           int     `json:"sample_size"`
	Accuracy             float64 `json:"accuracy"`
	AvgConfidenceCorrect float64 `json:"avg_confidence_correct"`
	CurrentWeight        float64 `json:"current_weight"`
}
