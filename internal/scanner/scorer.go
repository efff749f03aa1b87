// Package scanner ranks option chain contracts against an automation's
// entry preferences.
package scanner

import (
	"math"
	"sort"
	"time"

	"options-trader/internal/models"
	"options-trader/internal/strategy"
)

// Weights defines the fixed contribution of each sub-score.
// Weights sum to 1.0.
type Weights struct {
	Liquidity float64
	Spread    float64
	DTE       float64
	Delta     float64
}

// DefaultWeights returns the default scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Liquidity: 0.25,
		Spread:    0.30,
		DTE:       0.20,
		Delta:     0.25,
	}
}

// Contribution caps for the liquidity sub-score. Volume and open
// interest beyond these counts stop adding score.
const (
	volumeCap       = 1000
	openInterestCap = 5000
)

// Category labels for scored contracts.
const (
	CategoryAggressive   = "Aggressive"
	CategoryBalanced     = "Balanced"
	CategoryConservative = "Conservative"
)

// ScoredContract is a contract annotated with its composite score.
type ScoredContract struct {
	Contract models.OptionContract
	Score    float64 // [0, 1]
	Category string
	DTE      int
}

// Scorer scores and ranks option contracts.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with default weights.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// NewScorerWithWeights creates a scorer with custom weights.
func NewScorerWithWeights(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Rank filters the chain by the automation's hard criteria and returns
// the surviving contracts sorted by score, best first. Contracts that
// fail any hard filter are excluded entirely, never down-scored.
func (s *Scorer) Rank(chain models.OptionChain, strat strategy.Strategy, entry models.EntryCriteria, direction models.Direction, now time.Time) []ScoredContract {
	targetDelta := entry.TargetDelta
	if targetDelta == 0 {
		targetDelta = strat.DefaultDelta()
	}
	right := strat.TargetRight(direction)

	var ranked []ScoredContract
	for _, c := range chain.Contracts {
		if c.Right != right {
			continue
		}
		dte := c.DTE(now)
		if !passesHardFilters(c, entry, dte) {
			continue
		}

		score := s.score(c, entry, targetDelta, dte)
		ranked = append(ranked, ScoredContract{
			Contract: c,
			Score:    score,
			Category: categorize(score),
			DTE:      dte,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// Best returns the top contract satisfying all automation constraints,
// or false when the post-filter pool is empty. An empty pool is a
// normal "no opportunity found" outcome, not an error.
func (s *Scorer) Best(chain models.OptionChain, strat strategy.Strategy, entry models.EntryCriteria, direction models.Direction, now time.Time) (ScoredContract, bool) {
	for _, sc := range s.Rank(chain, strat, entry, direction, now) {
		if entry.MaxPremium > 0 && sc.Contract.Mid() > entry.MaxPremium {
			continue
		}
		return sc, true
	}
	return ScoredContract{}, false
}

func passesHardFilters(c models.OptionContract, entry models.EntryCriteria, dte int) bool {
	if c.Volume < entry.MinVolume {
		return false
	}
	if c.OpenInterest < entry.MinOpenInterest {
		return false
	}
	if entry.MaxSpreadPercent > 0 && c.SpreadPercent() > entry.MaxSpreadPercent {
		return false
	}
	if entry.MinDTE > 0 && dte < entry.MinDTE {
		return false
	}
	if entry.MaxDTE > 0 && dte > entry.MaxDTE {
		return false
	}
	absDelta := math.Abs(c.Greeks.Delta)
	if entry.MinDelta > 0 && absDelta < entry.MinDelta {
		return false
	}
	if entry.MaxDelta > 0 && absDelta > entry.MaxDelta {
		return false
	}
	return true
}

func (s *Scorer) score(c models.OptionContract, entry models.EntryCriteria, targetDelta float64, dte int) float64 {
	score := s.weights.Liquidity*liquidityScore(c) +
		s.weights.Spread*spreadScore(c, entry.MaxSpreadPercent) +
		s.weights.DTE*dteScore(dte, entry.PreferredDTE) +
		s.weights.Delta*deltaScore(c, targetDelta)

	return clamp01(score)
}

// liquidityScore blends volume and open interest, each capped so one
// very liquid contract cannot dominate the composite.
func liquidityScore(c models.OptionContract) float64 {
	vol := math.Min(float64(c.Volume)/volumeCap, 1)
	oi := math.Min(float64(c.OpenInterest)/openInterestCap, 1)
	return vol*0.5 + oi*0.5
}

// spreadScore rewards tight bid/ask spreads relative to the allowed cap.
func spreadScore(c models.OptionContract, maxSpreadPercent float64) float64 {
	if maxSpreadPercent <= 0 {
		maxSpreadPercent = 20
	}
	pct := c.SpreadPercent()
	if math.IsInf(pct, 1) {
		return 0
	}
	return clamp01(1 - pct/maxSpreadPercent)
}

// dteScore peaks at the automation's preferred DTE and decays linearly.
func dteScore(dte, preferredDTE int) float64 {
	if preferredDTE <= 0 {
		preferredDTE = 30
	}
	diff := math.Abs(float64(dte - preferredDTE))
	return clamp01(1 - diff/float64(preferredDTE))
}

// deltaScore peaks at the target delta and decays over a 0.25 band.
func deltaScore(c models.OptionContract, targetDelta float64) float64 {
	diff := math.Abs(math.Abs(c.Greeks.Delta) - targetDelta)
	return clamp01(1 - diff/0.25)
}

func categorize(score float64) string {
	switch {
	case score >= 0.7:
		return CategoryAggressive
	case score >= 0.5:
		return CategoryBalanced
	default:
		return CategoryConservative
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
