// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrMarketClosed      = errors.New("market is closed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderRejected     = errors.New("order rejected")
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionClosed    = errors.New("position already closed")
	ErrSymbolNotFound    = errors.New("symbol not found")
	ErrNoMarketData      = errors.New("no market data available")
	ErrStaleData         = errors.New("market data is stale")
	ErrRateLimited       = errors.New("rate limited")
	ErrTimeout           = errors.New("operation timed out")
	ErrCycleInProgress   = errors.New("cycle already in progress")
	ErrTriggerQueued     = errors.New("manual trigger already queued")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrEngineStopped     = errors.New("engine is not running")
)

// GatewayError represents an error from the market data or broker gateway.
type GatewayError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("gateway %s %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(op, symbol string, err error) *GatewayError {
	return &GatewayError{Op: op, Symbol: symbol, Err: err}
}

// ExecutionError represents an order placement failure after risk approval.
type ExecutionError struct {
	AutomationID string
	Symbol       string
	Action       string
	Reason       string
	Err          error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution error [%s] %s %s: %s: %v", e.AutomationID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("execution error [%s] %s %s: %s", e.AutomationID, e.Action, e.Symbol, e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(automationID, symbol, action, reason string, err error) *ExecutionError {
	return &ExecutionError{
		AutomationID: automationID,
		Symbol:       symbol,
		Action:       action,
		Reason:       reason,
		Err:          err,
	}
}

// RiskViolation represents a rejected trade. It is a normal negative
// outcome, not a failure: callers log it and move on.
type RiskViolation struct {
	Code    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskViolation) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Code, e.Message, e.Current, e.Limit)
}

// NewRiskViolation creates a new RiskViolation.
func NewRiskViolation(code string, current, limit float64, message string) *RiskViolation {
	return &RiskViolation{Code: code, Current: current, Limit: limit, Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
