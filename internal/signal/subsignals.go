package signal

import (
	"math"

	"options-trader/internal/indicators"
	"options-trader/internal/models"
)

// maCrossover votes on the relation between the 10- and 20-bar SMAs.
func maCrossover(candles []models.Candle) Vote {
	v := Vote{Name: "ma_crossover", Direction: models.DirectionNeutral}

	short, err := indicators.NewSMA(10).Calculate(candles)
	if err != nil {
		return v
	}
	long, err := indicators.NewSMA(20).Calculate(candles)
	if err != nil {
		return v
	}

	last := len(candles) - 1
	if long[last] == 0 {
		return v
	}

	// Strength scales with the gap between the averages, saturating at 2%.
	gap := (short[last] - long[last]) / long[last]
	strength := math.Min(math.Abs(gap)/0.02, 1)

	if gap > 0 {
		v.Direction = models.DirectionBullish
	} else if gap < 0 {
		v.Direction = models.DirectionBearish
	}
	v.Strength = strength
	return v
}

// rsiExtremity votes when the 14-bar RSI is oversold or overbought.
func rsiExtremity(candles []models.Candle) Vote {
	v := Vote{Name: "rsi_extremity", Direction: models.DirectionNeutral}

	rsi, err := indicators.NewRSI(14).Calculate(candles)
	if err != nil {
		return v
	}

	value := rsi[len(rsi)-1]
	switch {
	case value < 30:
		// Oversold, mean-reversion bullish; deeper is stronger.
		v.Direction = models.DirectionBullish
		v.Strength = math.Min((30-value)/30, 1)
	case value > 70:
		v.Direction = models.DirectionBearish
		v.Strength = math.Min((value-70)/30, 1)
	}
	return v
}

// macdCrossover votes on the sign and slope of the MACD histogram.
func macdCrossover(candles []models.Candle) Vote {
	v := Vote{Name: "macd_crossover", Direction: models.DirectionNeutral}

	out, err := indicators.NewMACD(12, 26, 9).Calculate(candles)
	if err != nil {
		return v
	}

	hist := out["histogram"]
	last := len(hist) - 1
	if last < 1 {
		return v
	}

	cur, prev := hist[last], hist[last-1]
	if cur == 0 {
		return v
	}

	// A fresh zero-line cross is a full-strength vote; a continuing
	// trend scales with histogram growth.
	crossed := (cur > 0) != (prev > 0)
	strength := 0.5
	if crossed {
		strength = 1.0
	} else if math.Abs(prev) > 0 {
		strength = math.Min(math.Abs(cur)/(math.Abs(prev)*2), 1)
	}

	if cur > 0 {
		v.Direction = models.DirectionBullish
	} else {
		v.Direction = models.DirectionBearish
	}
	v.Strength = strength
	return v
}

// volumeBreakout votes when the latest bar's volume is well above its
// 20-bar average, in the direction of the bar's close.
func volumeBreakout(candles []models.Candle) Vote {
	v := Vote{Name: "volume_breakout", Direction: models.DirectionNeutral}

	const lookback = 20
	n := len(candles)
	if n < lookback+1 {
		return v
	}

	var avg float64
	for _, c := range candles[n-lookback-1 : n-1] {
		avg += float64(c.Volume)
	}
	avg /= lookback
	if avg == 0 {
		return v
	}

	last := candles[n-1]
	ratio := float64(last.Volume) / avg
	if ratio < 1.5 {
		return v
	}

	if last.Close > last.Open {
		v.Direction = models.DirectionBullish
	} else if last.Close < last.Open {
		v.Direction = models.DirectionBearish
	} else {
		return v
	}
	v.Strength = math.Min((ratio-1.5)/1.5, 1)
	return v
}

// supportResistance votes when price sits within 2% of the 20-bar low
// (support, bullish) or high (resistance, bearish).
func supportResistance(candles []models.Candle) Vote {
	v := Vote{Name: "support_resistance", Direction: models.DirectionNeutral}

	const lookback = 20
	n := len(candles)
	if n < lookback {
		return v
	}

	window := candles[n-lookback:]
	low := window[0].Low
	high := window[0].High
	for _, c := range window[1:] {
		if c.Low < low {
			low = c.Low
		}
		if c.High > high {
			high = c.High
		}
	}

	close := candles[n-1].Close
	if close <= 0 || high <= low {
		return v
	}

	const proximity = 0.02
	if d := (close - low) / close; d >= 0 && d < proximity {
		v.Direction = models.DirectionBullish
		v.Strength = 1 - d/proximity
	} else if d := (high - close) / close; d >= 0 && d < proximity {
		v.Direction = models.DirectionBearish
		v.Strength = 1 - d/proximity
	}
	return v
}
