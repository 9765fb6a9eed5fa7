package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RiskLevel orders by severity; larger is worse.
type RiskLevel int

const (
	RiskNormal RiskLevel = iota
	RiskWarning
	RiskCritical
	RiskBreach
)

func (l RiskLevel) String() string {
	switch l {
	case RiskNormal:
		return "NORMAL"
	case RiskWarning:
		return "WARNING"
	case RiskCritical:
		return "CRITICAL"
	case RiskBreach:
		return "BREACH"
	default:
		return fmt.Sprintf("RiskLevel(%d)", int(l))
	}
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToUpper(s) {
	case "NORMAL":
		return RiskNormal, nil
	case "WARNING":
		return RiskWarning, nil
	case "CRITICAL":
		return RiskCritical, nil
	case "BREACH":
		return RiskBreach, nil
	}
	return RiskNormal, fmt.Errorf("unknown risk level %q", s)
}

func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *RiskLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// EquitySample is one observation recorded by the risk monitor loop.
type EquitySample struct {
	Timestamp   time.Time `json:"timestamp"`
	Equity      float64   `json:"equity"`
	PeakEquity  float64   `json:"peak_equity"`
	DrawdownPct float64   `json:"drawdown_pct"`
	DailyPnLPct float64   `json:"daily_pnl_pct"`
	Level       RiskLevel `json:"level"`
}

// RiskEvent is emitted when the overall level changes or trading is halted.
type RiskEvent struct {
	Timestamp  time.Time    `json:"timestamp"`
	Previous   RiskLevel    `json:"previous"`
	Current    RiskLevel    `json:"current"`
	Halted     bool         `json:"halted"`
	HaltReason string       `json:"halt_reason,omitempty"`
	Sample     EquitySample `json:"sample"`
}
