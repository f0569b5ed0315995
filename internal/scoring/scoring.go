package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Direction is the suggested contract side for an asset.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
	DirectionNone Direction = "NONE"
)

// Snapshot holds the indicator values scoring operates on.
type Snapshot struct {
	MomentumPct  decimal.Decimal
	RateOfChange decimal.Decimal
	Volatility   decimal.Decimal
	EMA          decimal.Decimal
	CurrentPrice decimal.Decimal
	Consistency  decimal.Decimal
}

// Weights are the component weights of the composite score. They must sum
// to exactly 1.00.
type Weights struct {
	Momentum     decimal.Decimal
	RateOfChange decimal.Decimal
	EMATrend     decimal.Decimal
	Volatility   decimal.Decimal
	Consistency  decimal.Decimal
	History      decimal.Decimal
}

// DefaultWeights returns the standard weight set.
func DefaultWeights() Weights {
	return Weights{
		Momentum:     decimal.RequireFromString("0.30"),
		RateOfChange: decimal.RequireFromString("0.20"),
		EMATrend:     decimal.RequireFromString("0.20"),
		Volatility:   decimal.RequireFromString("0.10"),
		Consistency:  decimal.RequireFromString("0.10"),
		History:      decimal.RequireFromString("0.10"),
	}
}

// Validate rejects weight sets that do not sum to 1.00.
func (w Weights) Validate() error {
	total := w.Momentum.
		Add(w.RateOfChange).
		Add(w.EMATrend).
		Add(w.Volatility).
		Add(w.Consistency).
		Add(w.History)
	if !total.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("score weights sum to %s, want 1.00", total)
	}
	return nil
}

// Expected indicator ranges for normalization.
var (
	momentumMin = decimal.RequireFromString("-5.00")
	momentumMax = decimal.RequireFromString("5.00")
	rocMin      = decimal.RequireFromString("-0.1")
	rocMax      = decimal.RequireFromString("0.1")
	volMax      = decimal.RequireFromString("2.0")
	trendMax    = decimal.RequireFromString("2.0")

	neutral = decimal.RequireFromString("50.00")
	hundred = decimal.NewFromInt(100)
)

// Normalize linearly maps value into [0,100] over [min,max], clamping
// outside the range. A degenerate range yields the neutral 50.
func Normalize(value, min, max decimal.Decimal) decimal.Decimal {
	if max.Equal(min) {
		return neutral
	}
	if value.LessThan(min) {
		return decimal.Zero
	}
	if value.GreaterThan(max) {
		return hundred
	}
	return value.Sub(min).Div(max.Sub(min)).Mul(hundred).Round(2)
}

// Score computes the weighted composite score (0-100) for an asset.
// winrate is the asset's historical dynamic winrate; pass nil when no
// performance record exists and a neutral 50 is assumed. Scores below
// minThreshold collapse to 0.
func Score(w Weights, s Snapshot, winrate *decimal.Decimal, minThreshold decimal.Decimal) decimal.Decimal {
	momentumNorm := Normalize(s.MomentumPct, momentumMin, momentumMax)
	rocNorm := Normalize(s.RateOfChange, rocMin, rocMax)
	volNorm := Normalize(s.Volatility, decimal.Zero, volMax)

	trendNorm := decimal.Zero
	if s.CurrentPrice.IsPositive() {
		deviationPct := s.EMA.Sub(s.CurrentPrice).Abs().
			Div(s.CurrentPrice).Mul(hundred)
		trendNorm = Normalize(deviationPct, decimal.Zero, trendMax)
	}

	historyNorm := neutral
	if winrate != nil {
		historyNorm = *winrate
	}

	score := w.Momentum.Mul(momentumNorm).
		Add(w.RateOfChange.Mul(rocNorm)).
		Add(w.Volatility.Mul(volNorm)).
		Add(w.EMATrend.Mul(trendNorm)).
		Add(w.Consistency.Mul(s.Consistency)).
		Add(w.History.Mul(historyNorm)).
		Round(2)

	if score.LessThan(minThreshold) {
		return decimal.Zero
	}
	if score.GreaterThan(hundred) {
		return hundred
	}
	return score
}

// SuggestDirection takes a majority vote across momentum sign, EMA versus
// current price, and rate-of-change sign. A tie yields DirectionNone.
func SuggestDirection(s Snapshot) Direction {
	callVotes, putVotes := 0, 0

	switch s.MomentumPct.Sign() {
	case 1:
		callVotes++
	case -1:
		putVotes++
	}

	switch s.EMA.Cmp(s.CurrentPrice) {
	case 1:
		callVotes++
	case -1:
		putVotes++
	}

	switch s.RateOfChange.Sign() {
	case 1:
		callVotes++
	case -1:
		putVotes++
	}

	switch {
	case callVotes > putVotes:
		return DirectionCall
	case putVotes > callVotes:
		return DirectionPut
	default:
		return DirectionNone
	}
}
