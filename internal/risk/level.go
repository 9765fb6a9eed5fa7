package risk

import "SignalGuard/internal/domain/models"

// Fractions of a limit at which each level starts.
const (
	warningRatio  = 0.7
	criticalRatio = 0.9
	breachRatio   = 1.0
)

// ClassifyRatio maps metric/limit to a level.
func ClassifyRatio(ratio float64) models.RiskLevel {
	switch {
	case ratio >= breachRatio:
		return models.RiskBreach
	case ratio >= criticalRatio:
		return models.RiskCritical
	case ratio >= warningRatio:
		return models.RiskWarning
	default:
		return models.RiskNormal
	}
}

// Assessment is the pure evaluation of one equity state against the configured limits.
type Assessment struct {
	DrawdownPct    float64
	DailyPnLPct    float64
	DrawdownRatio  float64
	DailyLossRatio float64
	DrawdownLevel  models.RiskLevel
	DailyLossLevel models.RiskLevel
	Level          models.RiskLevel
}

// Assess computes drawdown from peak and pnl against the day's baseline. Daily pnl only counts
// toward risk while negative. The overall level is the worse of the two.
func Assess(equity, peak, dayStart, maxDrawdownPct, dailyLossLimitPct float64) Assessment {
	var a Assessment
	if peak > 0 {
		a.DrawdownPct = (peak - equity) / peak * 100
	}
	if dayStart > 0 {
		a.DailyPnLPct = (equity - dayStart) / dayStart * 100
	}
	if maxDrawdownPct > 0 {
		a.DrawdownRatio = a.DrawdownPct / maxDrawdownPct
	}
	if a.DailyPnLPct < 0 && dailyLossLimitPct > 0 {
		a.DailyLossRatio = -a.DailyPnLPct / dailyLossLimitPct
	}

	a.DrawdownLevel = ClassifyRatio(a.DrawdownRatio)
	a.DailyLossLevel = ClassifyRatio(a.DailyLossRatio)
	a.Level = a.DrawdownLevel
	if a.DailyLossLevel > a.Level {
		a.Level = a.DailyLossLevel
	}
	return a
}
