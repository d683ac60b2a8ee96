package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

var one = decimal.NewFromInt(1)

// Inputs are the daily figures the breaker level is computed from.
type Inputs struct {
	DailyPnL            decimal.Decimal
	Exposure            decimal.Decimal
	ConsecutiveFailures int
}

// Ratios are the normalized distances to each hard limit.
type Ratios struct {
	Loss     decimal.Decimal
	Exposure decimal.Decimal
	Failures decimal.Decimal
}

// Max returns the largest ratio.
func (r Ratios) Max() decimal.Decimal {
	return decimal.Max(r.Loss, r.Exposure, r.Failures)
}

// ComputeRatios normalizes inputs against limits. Loss only counts when P&L is negative.
func ComputeRatios(in Inputs, limits types.RiskLimits) Ratios {
	var r Ratios

	if in.DailyPnL.IsNegative() && limits.MaxDailyLoss.IsPositive() {
		r.Loss = in.DailyPnL.Abs().Div(limits.MaxDailyLoss)
	}
	if limits.MaxDailyExposure.IsPositive() {
		r.Exposure = in.Exposure.Div(limits.MaxDailyExposure)
	}
	if limits.MaxConsecutiveFailures > 0 {
		r.Failures = decimal.NewFromInt(int64(in.ConsecutiveFailures)).
			Div(decimal.NewFromInt(int64(limits.MaxConsecutiveFailures)))
	}

	return r
}

// ComputeLevel maps the current inputs to a breaker level. It holds no state.
func ComputeLevel(in Inputs, limits types.RiskLimits) (types.BreakerLevel, string) {
	r := ComputeRatios(in, limits)

	switch {
	case r.Loss.GreaterThanOrEqual(one):
		return types.LevelHalt, fmt.Sprintf("daily loss %s reached limit %s", in.DailyPnL.Abs().StringFixed(2), limits.MaxDailyLoss.StringFixed(2))
	case r.Failures.GreaterThanOrEqual(one):
		return types.LevelHalt, fmt.Sprintf("%d consecutive execution failures", in.ConsecutiveFailures)
	}

	worst := r.Max()
	switch {
	case worst.GreaterThanOrEqual(limits.CriticalThreshold):
		return types.LevelCaution, fmt.Sprintf("risk ratio %s at or above critical threshold %s", worst.StringFixed(3), limits.CriticalThreshold)
	case worst.GreaterThanOrEqual(limits.WarningThreshold):
		return types.LevelWarning, fmt.Sprintf("risk ratio %s at or above warning threshold %s", worst.StringFixed(3), limits.WarningThreshold)
	default:
		return types.LevelNormal, ""
	}
}
