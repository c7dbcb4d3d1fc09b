package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes motion events to an slog.Logger.
// Useful for development when you want to see motion events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level
// (Warn level for error events).
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}

	if event.Axis != "" {
		attrs = append(attrs, slog.String("axis", event.Axis))
	}

	level := slog.LevelDebug

	// Add type-specific attributes
	switch {
	case event.Move != nil:
		attrs = append(attrs,
			slog.Float64("target", event.Move.Target),
			slog.Bool("wait", event.Move.Wait),
		)
		if event.Move.Timeout > 0 {
			attrs = append(attrs, slog.Duration("timeout", event.Move.Timeout))
		}
	case event.Value != nil:
		attrs = append(attrs, slog.Float64("value", event.Value.Value))
		if event.Value.Signal != "" {
			attrs = append(attrs, slog.String("signal", event.Value.Signal))
		}
	case event.Completion != nil:
		attrs = append(attrs,
			slog.Float64("target", event.Completion.Target),
			slog.Float64("final", event.Completion.Final),
			slog.Bool("success", event.Completion.Success),
			slog.Duration("elapsed", event.Completion.Elapsed),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.OldState != "" {
			attrs = append(attrs, slog.String("old_state", event.StateChange.OldState))
		}
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "motion event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
