package metrics

import "SignalGuard/internal/domain/models"

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordFetch(string, bool, error)                                {}
func (Nop) SetInFlight(int)                                                {}
func (Nop) SetSourceWeight(string, float64)                                {}
func (Nop) SetRiskState(models.RiskLevel, float64, float64, float64, bool) {}
func (Nop) RecordVerification(bool)                                        {}
func (Nop) RecordError(string)                                             {}
func (Nop) RecordLatency(string, float64)                                  {}
