// Package notify fans operator alerts out to the configured channels.
// Settlement halts, audited divergences and refund decisions are the events
// that matter here; everything else stays in the logs.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Alert event types emitted by the pipeline.
const (
	EventSettlementHalted   = "settlement_halted"
	EventDivergence         = "divergence"
	EventPoolRefunded       = "pool_refunded"
	EventResultConflict     = "result_conflict"
	EventResultSuperseded   = "result_superseded"
	EventCycleResolved      = "cycle_resolved"
	EventOverflowDisqualify = "overflow_disqualified"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to every registered sender, filtered by event
// type. An empty allow-list lets everything through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the alert if its event type passes the filter. Delivery
// failures are logged and returned but never block the caller's workflow.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
