// Package notify fans operator alerts out to one or more senders, filtered
// by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	EventBreaker           = "daily_loss_breaker"
	EventLossWarning       = "daily_loss_warning"
	EventOrderSubmitted    = "order_submitted"
	EventOrderRejected     = "order_rejected"
	EventReconcileDegraded = "reconcile_degraded"
	EventUnknownDeal       = "unknown_deal_direction"
)

// Alerter is what the trading components depend on. A nil *Notifier is a
// valid Alerter that drops everything.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

var _ Alerter = (*Notifier)(nil)

// NewNotifier forwards only the listed events; an empty list allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if n == nil || len(n.senders) == 0 {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
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
