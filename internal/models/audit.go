package models

import "time"

// AuditEvent classifies audit log entries.
type AuditEvent string

const (
	AuditEntry         AuditEvent = "entry"
	AuditExit          AuditEvent = "exit"
	AuditRiskRejection AuditEvent = "risk_rejection"
	AuditTrigger       AuditEvent = "automation_trigger"
	AuditNoOpportunity AuditEvent = "no_opportunity"
)

// AuditLog is an append-only record of engine activity. Every trade,
// risk rejection and automation trigger produces exactly one entry.
type AuditLog struct {
	ID           string
	UserID       string
	AutomationID string
	PositionID   string
	Symbol       string
	Event        AuditEvent
	Success      bool
	Detail       string
	Timestamp    time.Time
}

// ErrorLog is an append-only record of unhandled failures during a
// cycle step. Tagged with automation and symbol so one bad automation
// never hides another's failure.
type ErrorLog struct {
	ID           string
	AutomationID string
	Symbol       string
	Step         string
	Message      string
	Timestamp    time.Time
}

// IVSample is one implied-volatility observation for a symbol on a
// trading day. Written once per symbol per day, used for IV rank.
type IVSample struct {
	Symbol string
	Day    time.Time // truncated to date
	IV     float64
}
