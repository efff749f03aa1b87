// Package audit records engine activity as append-only log entries.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"options-trader/internal/models"
	"options-trader/internal/store"
	"options-trader/pkg/id"
)

// Sink receives audit and error entries. Implementations must not fail
// the caller's operation: a trade that executed is a trade that
// executed, even if its audit write did not land.
type Sink interface {
	Audit(ctx context.Context, entry models.AuditLog)
	Error(ctx context.Context, entry models.ErrorLog)
}

// StoreSink persists entries and mirrors them to the structured log.
type StoreSink struct {
	store  store.DataStore
	logger zerolog.Logger
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink creates a sink backed by the data store.
func NewStoreSink(st store.DataStore, logger zerolog.Logger) *StoreSink {
	return &StoreSink{
		store:  st,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Audit persists an audit entry, filling in ID and timestamp when unset.
func (s *StoreSink) Audit(ctx context.Context, entry models.AuditLog) {
	if entry.ID == "" {
		entry.ID = id.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.logger.Info().
		Str("event", string(entry.Event)).
		Str("automation_id", entry.AutomationID).
		Str("symbol", entry.Symbol).
		Bool("success", entry.Success).
		Str("detail", entry.Detail).
		Msg("audit")

	if err := s.store.AppendAudit(ctx, &entry); err != nil {
		s.logger.Error().Err(err).Str("event", string(entry.Event)).Msg("audit write failed")
	}
}

// Error persists an error entry, filling in ID and timestamp when unset.
func (s *StoreSink) Error(ctx context.Context, entry models.ErrorLog) {
	if entry.ID == "" {
		entry.ID = id.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.logger.Error().
		Str("automation_id", entry.AutomationID).
		Str("symbol", entry.Symbol).
		Str("step", entry.Step).
		Str("message", entry.Message).
		Msg("cycle step failed")

	if err := s.store.AppendError(ctx, &entry); err != nil {
		s.logger.Error().Err(err).Str("step", entry.Step).Msg("error log write failed")
	}
}

// NopSink discards all entries. Useful in tests.
type NopSink struct{}

var _ Sink = NopSink{}

func (NopSink) Audit(context.Context, models.AuditLog) {}
func (NopSink) Error(context.Context, models.ErrorLog) {}
