package scoring

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDefaultWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("DefaultWeights().Validate() = %v, want nil", err)
	}
}

func TestWeightsValidateRejectsBadSum(t *testing.T) {
	w := DefaultWeights()
	w.History = d("0.20")
	if err := w.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for weights summing to 1.10")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name             string
		value, min, max  string
		want             string
	}{
		{"midpoint", "0", "-5", "5", "50"},
		{"below range clamps to zero", "-10", "-5", "5", "0"},
		{"above range clamps to hundred", "10", "-5", "5", "100"},
		{"degenerate range is neutral", "3", "2", "2", "50"},
		{"quarter", "-2.5", "-5", "5", "25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(d(tt.value), d(tt.min), d(tt.max))
			if !got.Equal(d(tt.want)) {
				t.Errorf("Normalize(%s, %s, %s) = %s, want %s", tt.value, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestScoreNeutralSnapshot(t *testing.T) {
	// All factors at their neutral midpoints with no history record:
	// every normalized component is 50 except the EMA trend (deviation 0)
	// and consistency (0), so score = 0.5*(0.30+0.20+0.10+0.10) = 35.
	s := Snapshot{
		MomentumPct:  decimal.Zero,
		RateOfChange: decimal.Zero,
		Volatility:   d("1.0"),
		EMA:          d("100"),
		CurrentPrice: d("100"),
		Consistency:  decimal.Zero,
	}
	got := Score(DefaultWeights(), s, nil, decimal.Zero)
	if !got.Equal(d("35")) {
		t.Errorf("Score() = %s, want 35", got)
	}
}

func TestScoreBelowThresholdCollapses(t *testing.T) {
	s := Snapshot{
		MomentumPct:  decimal.Zero,
		RateOfChange: decimal.Zero,
		Volatility:   d("1.0"),
		EMA:          d("100"),
		CurrentPrice: d("100"),
		Consistency:  decimal.Zero,
	}
	got := Score(DefaultWeights(), s, nil, d("40"))
	if !got.IsZero() {
		t.Errorf("Score() below threshold = %s, want 0", got)
	}
}

func TestScoreUsesProvidedWinrate(t *testing.T) {
	s := Snapshot{
		MomentumPct:  decimal.Zero,
		RateOfChange: decimal.Zero,
		Volatility:   d("1.0"),
		EMA:          d("100"),
		CurrentPrice: d("100"),
		Consistency:  decimal.Zero,
	}
	winrate := d("100")
	got := Score(DefaultWeights(), s, &winrate, decimal.Zero)
	// History component moves from 0.10*50 to 0.10*100.
	if !got.Equal(d("40")) {
		t.Errorf("Score() with winrate 100 = %s, want 40", got)
	}
}

func TestScoreClampsToHundred(t *testing.T) {
	s := Snapshot{
		MomentumPct:  d("10"),
		RateOfChange: d("1"),
		Volatility:   d("5"),
		EMA:          d("110"),
		CurrentPrice: d("100"),
		Consistency:  d("100"),
	}
	winrate := d("100")
	got := Score(DefaultWeights(), s, &winrate, decimal.Zero)
	if got.GreaterThan(d("100")) {
		t.Errorf("Score() = %s, want at most 100", got)
	}
}

func TestSuggestDirection(t *testing.T) {
	tests := []struct {
		name string
		s    Snapshot
		want Direction
	}{
		{
			name: "all factors up",
			s: Snapshot{
				MomentumPct:  d("1.5"),
				EMA:          d("101"),
				CurrentPrice: d("100"),
				RateOfChange: d("0.05"),
			},
			want: DirectionCall,
		},
		{
			name: "all factors down",
			s: Snapshot{
				MomentumPct:  d("-1.5"),
				EMA:          d("99"),
				CurrentPrice: d("100"),
				RateOfChange: d("-0.05"),
			},
			want: DirectionPut,
		},
		{
			name: "split vote ties to none",
			s: Snapshot{
				MomentumPct:  d("1.5"),
				EMA:          d("99"),
				CurrentPrice: d("100"),
				RateOfChange: decimal.Zero,
			},
			want: DirectionNone,
		},
		{
			name: "all flat ties to none",
			s: Snapshot{
				MomentumPct:  decimal.Zero,
				EMA:          d("100"),
				CurrentPrice: d("100"),
				RateOfChange: decimal.Zero,
			},
			want: DirectionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuggestDirection(tt.s); got != tt.want {
				t.Errorf("SuggestDirection() = %s, want %s", got, tt.want)
			}
		})
	}
}
