package indicators

import (
	"testing"

	"github.com/shopspring/decimal"
)

func series(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestMomentum(t *testing.T) {
	tests := []struct {
		name      string
		prices    []decimal.Decimal
		period    int
		wantValue string
		wantPct   string
	}{
		{
			name:      "rising window",
			prices:    series(100, 101, 102, 103, 104),
			period:    5,
			wantValue: "4",
			wantPct:   "4",
		},
		{
			name:      "falling window uses last period only",
			prices:    series(50, 200, 198, 196, 194, 192),
			period:    5,
			wantValue: "-8",
			wantPct:   "-4",
		},
		{
			name:      "insufficient data",
			prices:    series(100, 101),
			period:    10,
			wantValue: "0",
			wantPct:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, pct := Momentum(tt.prices, tt.period)
			if value.String() != tt.wantValue {
				t.Errorf("Momentum() value = %s, want %s", value, tt.wantValue)
			}
			if pct.String() != tt.wantPct {
				t.Errorf("Momentum() pct = %s, want %s", pct, tt.wantPct)
			}
		})
	}
}

func TestMomentumPctRounding(t *testing.T) {
	// 1/3 percent change must come back quantized to 4 decimal places
	_, pct := Momentum(series(3, 3, 3, 3.01), 4)
	want := decimal.RequireFromString("0.3333")
	if !pct.Equal(want) {
		t.Errorf("Momentum() pct = %s, want %s", pct, want)
	}
}

func TestVolatility(t *testing.T) {
	if got := Volatility(series(100), 20); !got.IsZero() {
		t.Errorf("Volatility() with one sample = %s, want 0", got)
	}
	if got := Volatility(series(5, 5, 5, 5), 20); !got.IsZero() {
		t.Errorf("Volatility() of constant series = %s, want 0", got)
	}

	// Sample stdev of [2,4,4,4,5,5,7,9] is sqrt(32/7) = 2.1381...
	got := Volatility(series(2, 4, 4, 4, 5, 5, 7, 9), 20)
	want := decimal.RequireFromString("2.1381")
	if !got.Equal(want) {
		t.Errorf("Volatility() = %s, want %s", got, want)
	}
}

func TestEMA(t *testing.T) {
	if got := EMA(nil, 10); !got.IsZero() {
		t.Errorf("EMA() of empty series = %s, want 0", got)
	}

	single := decimal.RequireFromString("123.45")
	if got := EMA([]decimal.Decimal{single}, 10); !got.Equal(single) {
		t.Errorf("EMA() of single price = %s, want %s", got, single)
	}

	// Window equals the period: EMA collapses to the simple average.
	got := EMA(series(1, 2, 3, 4), 4)
	want := decimal.RequireFromString("2.5")
	if !got.Equal(want) {
		t.Errorf("EMA() = %s, want %s", got, want)
	}

	// Short series: seeded with the average of what is available.
	got = EMA(series(10, 20), 10)
	if !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("EMA() of short series = %s, want 15", got)
	}
}

func TestRateOfChange(t *testing.T) {
	if got := RateOfChange(series(1, 2), 10); !got.IsZero() {
		t.Errorf("RateOfChange() with insufficient data = %s, want 0", got)
	}

	// Perfectly linear series: slope equals the step.
	got := RateOfChange(series(100, 100.5, 101, 101.5, 102), 5)
	want := decimal.RequireFromString("0.5")
	if !got.Equal(want) {
		t.Errorf("RateOfChange() = %s, want %s", got, want)
	}

	if got := RateOfChange(series(7, 7, 7, 7, 7), 5); !got.IsZero() {
		t.Errorf("RateOfChange() of flat series = %s, want 0", got)
	}
}

func TestMovementStrength(t *testing.T) {
	got := MovementStrength(decimal.RequireFromString("101.5"), decimal.RequireFromString("100.25"))
	want := decimal.RequireFromString("1.25")
	if !got.Equal(want) {
		t.Errorf("MovementStrength() = %s, want %s", got, want)
	}

	// Symmetric in sign
	got = MovementStrength(decimal.RequireFromString("100.25"), decimal.RequireFromString("101.5"))
	if !got.Equal(want) {
		t.Errorf("MovementStrength() reversed = %s, want %s", got, want)
	}
}

func TestConsistency(t *testing.T) {
	tests := []struct {
		name   string
		prices []decimal.Decimal
		period int
		want   string
	}{
		{
			name:   "leading run of two ups out of four moves",
			prices: series(1, 2, 3, 2, 1),
			period: 4,
			want:   "50",
		},
		{
			name:   "fully consistent",
			prices: series(1, 2, 3, 4),
			period: 10,
			want:   "100",
		},
		{
			name:   "flat first move",
			prices: series(5, 5, 6, 7),
			period: 10,
			want:   "0",
		},
		{
			name:   "single price",
			prices: series(5),
			period: 10,
			want:   "0",
		},
		{
			name:   "one third",
			prices: series(1, 0.5, 1, 2),
			period: 4,
			want:   "33.33",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Consistency(tt.prices, tt.period)
			want := decimal.RequireFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("Consistency() = %s, want %s", got, want)
			}
		})
	}
}
