package indicators

import (
	"fmt"

	"options-trader/internal/models"
)

// SMA calculates Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(candles []models.Candle) ([]float64, error) {
	if s.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < s.period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(candles))
	closes := closePrices(candles)

	for i := s.period - 1; i < len(candles); i++ {
		result[i] = mean(closes[i-s.period+1 : i+1])
	}

	return result, nil
}

// EMA calculates Exponential Moving Average.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA_%d", e.period)
}

func (e *EMA) Period() int {
	return e.period
}

func (e *EMA) Calculate(candles []models.Candle) ([]float64, error) {
	if e.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < e.period {
		return nil, ErrInsufficientData
	}

	return CalculateEMA(closePrices(candles), e.period), nil
}

// CalculateEMA calculates EMA on raw values (helper for other indicators).
func CalculateEMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}

	result := make([]float64, len(values))
	multiplier := 2.0 / float64(period+1)

	// First EMA is SMA
	result[period-1] = mean(values[:period])

	for i := period; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}

	return result
}

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator. Conventional periods are 12, 26, 9.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Period() int {
	return m.slowPeriod + m.signalPeriod - 1
}

// Calculate returns the MACD line, signal line and histogram.
func (m *MACD) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < m.Period() {
		return nil, ErrInsufficientData
	}

	closes := closePrices(candles)
	fastEMA := CalculateEMA(closes, m.fastPeriod)
	slowEMA := CalculateEMA(closes, m.slowPeriod)

	macdLine := make([]float64, len(candles))
	for i := m.slowPeriod - 1; i < len(candles); i++ {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	// Signal line is the EMA of the MACD line past its warm-up.
	signalLine := make([]float64, len(candles))
	startIdx := m.slowPeriod - 1
	signalEMA := CalculateEMA(macdLine[startIdx:], m.signalPeriod)
	for i := 0; i < len(signalEMA); i++ {
		signalLine[startIdx+i] = signalEMA[i]
	}

	histogram := make([]float64, len(candles))
	for i := m.Period() - 1; i < len(candles); i++ {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	return map[string][]float64{
		"macd":      macdLine,
		"signal":    signalLine,
		"histogram": histogram,
	}, nil
}
