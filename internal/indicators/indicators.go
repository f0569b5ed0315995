package indicators

import (
	"math"

	"github.com/shopspring/decimal"
)

// Pure indicator functions over a price series ordered oldest to newest.
// All outputs are fixed-point decimals rounded half away from zero so that
// money-adjacent figures never accumulate binary float drift.

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Momentum returns the absolute and percentage price change over the last
// period prices. Both are zero when the series is shorter than the period.
func Momentum(prices []decimal.Decimal, period int) (decimal.Decimal, decimal.Decimal) {
	if len(prices) < period {
		return decimal.Zero, decimal.Zero
	}

	window := prices[len(prices)-period:]
	first := window[0]
	last := window[len(window)-1]

	value := last.Sub(first)
	if first.IsZero() {
		return value, decimal.Zero
	}
	pct := value.Div(first).Mul(hundred).Round(4)

	return value, pct
}

// Volatility returns the standard deviation of the last period prices
// (or all of them when fewer are available), rounded to 4 decimal places.
// The divisor is n-1, the sample form, deliberately kept over the
// population form. Returns zero with fewer than 2 samples.
func Volatility(prices []decimal.Decimal, period int) decimal.Decimal {
	if len(prices) < 2 {
		return decimal.Zero
	}

	window := prices
	if len(prices) >= period {
		window = prices[len(prices)-period:]
	}
	if len(window) < 2 {
		return decimal.Zero
	}

	values := make([]float64, len(window))
	sum := 0.0
	for i, p := range window {
		v, _ := p.Float64()
		values[i] = v
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(values)-1))

	return decimal.NewFromFloat(stdev).Round(4)
}

// EMA returns the exponential moving average of the last period prices,
// seeded with the simple average of the first period samples and smoothed
// with multiplier 2/(period+1), rounded to 5 decimal places.
func EMA(prices []decimal.Decimal, period int) decimal.Decimal {
	if len(prices) == 0 {
		return decimal.Zero
	}

	window := prices
	if len(prices) >= period {
		window = prices[len(prices)-period:]
	}
	if len(window) == 1 {
		return window[0]
	}

	seedLen := period
	if seedLen > len(window) {
		seedLen = len(window)
	}
	sum := decimal.Zero
	for _, p := range window[:seedLen] {
		sum = sum.Add(p)
	}
	ema := sum.Div(decimal.NewFromInt(int64(seedLen)))

	multiplier := two.Div(decimal.NewFromInt(int64(period + 1)))
	for _, p := range window[seedLen:] {
		ema = p.Sub(ema).Mul(multiplier).Add(ema)
	}

	return ema.Round(5)
}

// RateOfChange returns the slope of an ordinary least-squares regression of
// price against tick index over the last period samples, rounded to 4
// decimal places. Zero when data is insufficient or the denominator
// degenerates.
func RateOfChange(prices []decimal.Decimal, period int) decimal.Decimal {
	if len(prices) < period {
		return decimal.Zero
	}

	window := prices[len(prices)-period:]
	n := len(window)

	var xSum, x2Sum int64
	var xySum float64
	ySum := decimal.Zero
	for i, p := range window {
		xSum += int64(i)
		x2Sum += int64(i) * int64(i)
		v, _ := p.Float64()
		xySum += float64(i) * v
		ySum = ySum.Add(p)
	}

	denominator := decimal.NewFromInt(int64(n)*x2Sum - xSum*xSum)
	if denominator.IsZero() {
		return decimal.Zero
	}
	numerator := decimal.NewFromInt(int64(n)).Mul(decimal.NewFromFloat(xySum)).
		Sub(decimal.NewFromInt(xSum).Mul(ySum))

	return numerator.Div(denominator).Round(4)
}

// MovementStrength returns |ema - current|, rounded to 5 decimal places.
func MovementStrength(currentPrice, ema decimal.Decimal) decimal.Decimal {
	return ema.Sub(currentPrice).Abs().Round(5)
}

// Consistency returns the percentage of leading consecutive same-direction
// moves among the last period moves, rounded to 2 decimal places. The run is
// broken by the first direction reversal; a flat first move or fewer than 2
// samples yields zero.
func Consistency(prices []decimal.Decimal, period int) decimal.Decimal {
	if len(prices) < 2 {
		return decimal.Zero
	}

	// period moves need period+1 prices
	window := prices
	if len(prices) > period {
		window = prices[len(prices)-period-1:]
	}
	if len(window) < 2 {
		return decimal.Zero
	}

	directions := make([]int, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		switch window[i].Cmp(window[i-1]) {
		case 1:
			directions = append(directions, 1)
		case -1:
			directions = append(directions, -1)
		default:
			directions = append(directions, 0)
		}
	}

	initial := directions[0]
	if initial == 0 {
		return decimal.Zero
	}

	consistent := 1
	for _, d := range directions[1:] {
		if d != initial {
			break
		}
		consistent++
	}

	return decimal.NewFromInt(int64(consistent)).
		Div(decimal.NewFromInt(int64(len(directions)))).
		Mul(hundred).
		Round(2)
}
