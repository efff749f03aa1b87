// Package signal turns price/volume history into a directional signal
// with a confidence score.
//
// Generation is pure: the same candle history and IV rank always yield
// the same signal, so tests are deterministic.
package signal

import (
	"options-trader/internal/models"
)

// SubSignalWeights defines the fixed contribution of each sub-signal to
// the composite confidence. Weights sum to 1.0.
type SubSignalWeights struct {
	MACrossover       float64
	RSIExtremity      float64
	MACDCrossover     float64
	VolumeBreakout    float64
	SupportResistance float64
}

// DefaultWeights returns the default sub-signal weights.
func DefaultWeights() SubSignalWeights {
	return SubSignalWeights{
		MACrossover:       0.25,
		RSIExtremity:      0.20,
		MACDCrossover:     0.25,
		VolumeBreakout:    0.15,
		SupportResistance: 0.15,
	}
}

// Vote is one sub-signal's independent opinion.
type Vote struct {
	Name      string
	Direction models.Direction
	Strength  float64 // [0, 1] before weighting
}

const (
	// minBars is the data-quality bar below which no non-neutral
	// signal is generated.
	minBars = 30
	// minAgreement is the number of sub-signals that must agree on a
	// direction before the result is non-neutral.
	minAgreement = 2
	// maxIVBoost bounds the confidence boost from elevated IV rank.
	maxIVBoost = 0.10
)

// Generator aggregates sub-signal votes into a composite signal.
type Generator struct {
	weights SubSignalWeights
}

// NewGenerator creates a generator with default weights.
func NewGenerator() *Generator {
	return &Generator{weights: DefaultWeights()}
}

// NewGeneratorWithWeights creates a generator with custom weights.
func NewGeneratorWithWeights(w SubSignalWeights) *Generator {
	return &Generator{weights: w}
}

// Generate computes the composite signal for a symbol from its candle
// history (most recent last) and the symbol's current IV rank in [0,1].
// A negative ivRank means no IV history is available.
//
// Neutral is a graded outcome, not just a fallback: over sufficient
// history it scores by how little directional evidence the sub-signals
// found, so range-bound strategies have a confidence to gate on. Below
// the data-quality bar the signal is neutral with zero confidence.
func (g *Generator) Generate(symbol string, candles []models.Candle, ivRank float64) models.Signal {
	neutral := models.Signal{
		Symbol:    symbol,
		Direction: models.DirectionNeutral,
	}

	if len(candles) < minBars {
		return neutral
	}

	votes := []struct {
		vote   Vote
		weight float64
	}{
		{maCrossover(candles), g.weights.MACrossover},
		{rsiExtremity(candles), g.weights.RSIExtremity},
		{macdCrossover(candles), g.weights.MACDCrossover},
		{volumeBreakout(candles), g.weights.VolumeBreakout},
		{supportResistance(candles), g.weights.SupportResistance},
	}

	confidence := map[models.Direction]float64{}
	agreement := map[models.Direction]int{}
	components := map[string]float64{}

	for _, v := range votes {
		weighted := v.vote.Strength * v.weight
		components[v.vote.Name] = weighted
		if v.vote.Direction == models.DirectionNeutral {
			continue
		}
		confidence[v.vote.Direction] += weighted
		agreement[v.vote.Direction]++
	}

	winner := models.DirectionNeutral
	var best float64
	for _, d := range []models.Direction{models.DirectionBullish, models.DirectionBearish} {
		if confidence[d] > best {
			best = confidence[d]
			winner = d
		}
	}

	var total float64
	if winner == models.DirectionNeutral || agreement[winner] < minAgreement {
		// A range-bound read. Its confidence is the absence of
		// directional evidence, so a quiet tape scores high and a
		// one-sided-but-unconfirmed tape scores low.
		winner = models.DirectionNeutral
		total = 1 - confidence[models.DirectionBullish] - confidence[models.DirectionBearish]
		if total < 0 {
			total = 0
		}
	} else {
		total = confidence[winner]
	}

	var boost float64
	if ivRank > 0 {
		boost = ivRank * maxIVBoost
		if boost > maxIVBoost {
			boost = maxIVBoost
		}
		total += boost
	}

	if total > 1 {
		total = 1
	}

	return models.Signal{
		Symbol:     symbol,
		Direction:  winner,
		Confidence: total,
		Components: components,
		IVBoost:    boost,
	}
}
