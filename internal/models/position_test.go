package models

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: unrealized P/L is always (current - entry) * quantity *
// multiplier, sign-flipped for short positions, and the percentage form
// is consistent with the absolute form.
func TestProperty_UnrealizedPnLDerivation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("long option P/L matches hand derivation", prop.ForAll(
		func(entry, current float64, qty int) bool {
			pos := Position{
				Contract:   &OptionContract{Symbol: "X"},
				Side:       SideLong,
				Quantity:   qty,
				EntryPrice: entry,
			}
			pos.CurrentPrice = current

			want := (current - entry) * float64(qty) * 100
			return math.Abs(pos.UnrealizedPnL()-want) < 1e-9
		},
		gen.Float64Range(0.05, 50),
		gen.Float64Range(0.05, 50),
		gen.IntRange(1, 50),
	))

	properties.Property("short P/L is the negation of long P/L", prop.ForAll(
		func(entry, current float64, qty int) bool {
			long := Position{Contract: &OptionContract{}, Side: SideLong, Quantity: qty, EntryPrice: entry, CurrentPrice: current}
			short := Position{Contract: &OptionContract{}, Side: SideShort, Quantity: qty, EntryPrice: entry, CurrentPrice: current}
			return math.Abs(long.UnrealizedPnL()+short.UnrealizedPnL()) < 1e-9
		},
		gen.Float64Range(0.05, 50),
		gen.Float64Range(0.05, 50),
		gen.IntRange(1, 50),
	))

	properties.Property("percent form is consistent with absolute form", prop.ForAll(
		func(entry, current float64, qty int) bool {
			pos := Position{Contract: &OptionContract{}, Side: SideLong, Quantity: qty, EntryPrice: entry, CurrentPrice: current}
			basis := entry * float64(qty) * 100
			want := pos.UnrealizedPnL() / basis * 100
			return math.Abs(pos.UnrealizedPnLPercent()-want) < 1e-9
		},
		gen.Float64Range(0.05, 50),
		gen.Float64Range(0.05, 50),
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

func TestUnrealizedPnLScenarios(t *testing.T) {
	// Two long calls bought at 2.50, marked at 5.25.
	pos := Position{
		Contract:   &OptionContract{Symbol: "AAPL260116C00200000"},
		Side:       SideLong,
		Quantity:   2,
		EntryPrice: 2.50,
	}
	pos.CurrentPrice = 5.25

	if got := pos.UnrealizedPnL(); math.Abs(got-550.00) > 1e-9 {
		t.Fatalf("long option P/L = %.2f, want 550.00", got)
	}
	if got := pos.UnrealizedPnLPercent(); math.Abs(got-110.0) > 1e-9 {
		t.Fatalf("long option P/L%% = %.2f, want 110.00", got)
	}

	// Same fills on a short position lose what the long gains.
	pos.Side = SideShort
	if got := pos.UnrealizedPnL(); math.Abs(got+550.00) > 1e-9 {
		t.Fatalf("short option P/L = %.2f, want -550.00", got)
	}

	// Equity positions use multiplier 1.
	equity := Position{Side: SideLong, Quantity: 10, EntryPrice: 100, CurrentPrice: 103}
	if got := equity.UnrealizedPnL(); math.Abs(got-30.0) > 1e-9 {
		t.Fatalf("equity P/L = %.2f, want 30.00", got)
	}
}

func TestRealizedPnLAtUsesClosedQuantityOnly(t *testing.T) {
	pos := Position{
		Contract:   &OptionContract{},
		Side:       SideLong,
		Quantity:   4,
		EntryPrice: 1.00,
	}

	if got := pos.RealizedPnLAt(1.50, 2); math.Abs(got-100.0) > 1e-9 {
		t.Fatalf("partial close P/L = %.2f, want 100.00", got)
	}

	pos.Side = SideShort
	if got := pos.RealizedPnLAt(0.40, 4); math.Abs(got-240.0) > 1e-9 {
		t.Fatalf("short close P/L = %.2f, want 240.00", got)
	}
}

func TestPnLPercentZeroBasis(t *testing.T) {
	pos := Position{Side: SideLong, Quantity: 1}
	if got := pos.UnrealizedPnLPercent(); got != 0 {
		t.Fatalf("zero-basis P/L%% = %.2f, want 0", got)
	}
}

func TestContractDTE(t *testing.T) {
	now := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	c := OptionContract{Expiration: time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)}
	if got := c.DTE(now); got != 31 {
		t.Fatalf("DTE = %d, want 31", got)
	}

	expired := OptionContract{Expiration: now.Add(-24 * time.Hour)}
	if got := expired.DTE(now); got != 0 {
		t.Fatalf("expired DTE = %d, want 0", got)
	}
}

func TestSpreadPercent(t *testing.T) {
	c := OptionContract{Bid: 1.00, Ask: 1.50}
	// Spread 0.50 over mid 1.25 is 40%.
	if got := c.SpreadPercent(); math.Abs(got-40.0) > 1e-9 {
		t.Fatalf("spread%% = %.2f, want 40.00", got)
	}

	empty := OptionContract{}
	if got := empty.SpreadPercent(); !math.IsInf(got, 1) {
		t.Fatalf("empty book spread%% = %.2f, want +Inf", got)
	}
}
