package signal

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-trader/internal/models"
)

func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(10.0, 500.0),
		"High":   gen.Float64Range(10.0, 500.0),
		"Low":    gen.Float64Range(10.0, 500.0),
		"Close":  gen.Float64Range(10.0, 500.0),
		"Volume": gen.Int64Range(1000, 5000000),
	}).Map(func(c models.Candle) models.Candle {
		c.High = math.Max(c.High, math.Max(c.Open, c.Close))
		c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
		if c.High <= c.Low {
			c.High = c.Low + 1.0
		}
		return c
	})
}

func candleSliceGen(minLen, maxLen int) gopter.Gen {
	return gen.SliceOfN(maxLen, candleGen()).Map(func(candles []models.Candle) []models.Candle {
		for len(candles) < minLen {
			candles = append(candles, candles[len(candles)-1])
		}
		base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
		for i := range candles {
			candles[i].Timestamp = base.Add(time.Duration(i) * 24 * time.Hour)
		}
		return candles
	})
}

// Property: confidence is always within [0, 1] regardless of history
// or IV rank.
func TestProperty_ConfidenceWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("confidence in [0, 1] for any history and IV rank", prop.ForAll(
		func(candles []models.Candle, ivRank float64) bool {
			sig := NewGenerator().Generate("TEST", candles, ivRank)
			if sig.Confidence < 0 || sig.Confidence > 1 {
				return false
			}
			if len(candles) < minBars && sig.Confidence != 0 {
				return false
			}
			return true
		},
		candleSliceGen(0, 120),
		gen.Float64Range(-1, 1),
	))

	properties.TestingRun(t)
}

// Property: generation is pure. The same inputs always produce the
// same signal.
func TestProperty_GenerationIsDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("same candles and IV rank give identical signals", prop.ForAll(
		func(candles []models.Candle, ivRank float64) bool {
			g := NewGenerator()
			a := g.Generate("TEST", candles, ivRank)
			b := g.Generate("TEST", candles, ivRank)
			return a.Direction == b.Direction &&
				a.Confidence == b.Confidence &&
				a.IVBoost == b.IVBoost
		},
		candleSliceGen(30, 90),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

// Property: the IV boost never exceeds its cap and never flips a
// signal's direction.
func TestProperty_IVBoostBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("IV boost stays within cap and preserves direction", prop.ForAll(
		func(candles []models.Candle, ivRank float64) bool {
			g := NewGenerator()
			base := g.Generate("TEST", candles, -1)
			boosted := g.Generate("TEST", candles, ivRank)

			if boosted.IVBoost < 0 || boosted.IVBoost > maxIVBoost {
				return false
			}
			return base.Direction == boosted.Direction
		},
		candleSliceGen(30, 90),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestGenerateNeutralOnShortHistory(t *testing.T) {
	candles := make([]models.Candle, minBars-1)
	for i := range candles {
		candles[i] = models.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000}
	}

	sig := NewGenerator().Generate("TEST", candles, 0.9)
	if sig.Direction != models.DirectionNeutral {
		t.Fatalf("short history direction = %s, want NEUTRAL", sig.Direction)
	}
	if sig.Confidence != 0 {
		t.Fatalf("short history confidence = %.2f, want 0", sig.Confidence)
	}
}

func TestGenerateNeutralOnRangeBoundTape(t *testing.T) {
	// A flat tape with steady volume leaves no confirmed directional
	// evidence, so the composite carries a high neutral confidence and
	// clears the entry gates of range-bound strategies.
	candles := make([]models.Candle, 60)
	for i := range candles {
		candles[i] = models.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000}
	}

	sig := NewGenerator().Generate("TEST", candles, -1)
	if sig.Direction != models.DirectionNeutral {
		t.Fatalf("range-bound direction = %s, want NEUTRAL", sig.Direction)
	}
	if sig.Confidence < 0.30 {
		t.Fatalf("range-bound confidence = %.2f, want >= 0.30", sig.Confidence)
	}
}

func TestGenerateBullishOnStrongUptrend(t *testing.T) {
	// A steady rally with a volume surge on the last bar trips the MA,
	// MACD and volume sub-signals in the same direction.
	candles := make([]models.Candle, 60)
	price := 100.0
	for i := range candles {
		price *= 1.01
		candles[i] = models.Candle{
			Open:   price * 0.995,
			High:   price * 1.005,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1000,
		}
	}
	candles[len(candles)-1].Volume = 5000

	sig := NewGenerator().Generate("TEST", candles, -1)
	if sig.Direction != models.DirectionBullish {
		t.Fatalf("uptrend direction = %s, want BULLISH", sig.Direction)
	}
	if sig.Confidence <= 0 {
		t.Fatalf("uptrend confidence = %.2f, want > 0", sig.Confidence)
	}
	if sig.IVBoost != 0 {
		t.Fatalf("no-history IV boost = %.2f, want 0", sig.IVBoost)
	}
}

func TestGenerateIVBoostIncreasesConfidence(t *testing.T) {
	candles := make([]models.Candle, 60)
	price := 100.0
	for i := range candles {
		price *= 1.01
		candles[i] = models.Candle{
			Open:   price * 0.995,
			High:   price * 1.005,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1000,
		}
	}
	candles[len(candles)-1].Volume = 5000

	g := NewGenerator()
	base := g.Generate("TEST", candles, -1)
	boosted := g.Generate("TEST", candles, 1.0)

	if base.Direction != models.DirectionBullish || boosted.Direction != models.DirectionBullish {
		t.Fatalf("expected bullish signals, got %s and %s", base.Direction, boosted.Direction)
	}
	if boosted.Confidence < base.Confidence {
		t.Fatalf("boosted confidence %.3f below base %.3f", boosted.Confidence, base.Confidence)
	}
	if boosted.IVBoost != maxIVBoost {
		t.Fatalf("full IV rank boost = %.3f, want %.3f", boosted.IVBoost, maxIVBoost)
	}
}

func TestIVRank(t *testing.T) {
	day := func(i int) time.Time {
		return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	samples := []models.IVSample{
		{Symbol: "TEST", Day: day(0), IV: 0.20},
		{Symbol: "TEST", Day: day(1), IV: 0.60},
		{Symbol: "TEST", Day: day(2), IV: 0.40},
	}

	if got := IVRank(samples, 0.40); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("mid-range rank = %.2f, want 0.50", got)
	}
	if got := IVRank(samples, 0.20); got != 0 {
		t.Fatalf("at-low rank = %.2f, want 0", got)
	}
	if got := IVRank(samples, 0.90); got != 1 {
		t.Fatalf("above-high rank = %.2f, want 1 (clamped)", got)
	}
	if got := IVRank(samples[:1], 0.40); got != -1 {
		t.Fatalf("single-sample rank = %.2f, want -1", got)
	}
	flat := []models.IVSample{{IV: 0.30}, {IV: 0.30}}
	if got := IVRank(flat, 0.30); got != -1 {
		t.Fatalf("flat-history rank = %.2f, want -1", got)
	}
}
