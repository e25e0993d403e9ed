// Package notify delivers marketplace events to people: emails through one or
// more Senders, and in-app bell notifications through the store. Delivery is
// driven by the Dispatcher, which drains the event queue.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/factorhub/marketplace/internal/models"
)

// Message is one outgoing email.
type Message struct {
	Kind    models.EventKind `json:"kind"`
	To      string           `json:"to"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
}

// Sender is a delivery channel.
type Sender interface {
	// Send delivers msg.
	Send(ctx context.Context, msg Message) error
	// Name returns a short identifier such as "smtp".
	Name() string
}

// Notifier fans a message out to every sender. It forwards only the event
// kinds it was configured with; an empty list allows every kind.
type Notifier struct {
	senders []Sender
	events  map[models.EventKind]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for the given senders and allowed event kinds.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[models.EventKind]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[models.EventKind(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With("component", "notifier"),
	}
}

// Allows reports whether messages for kind are forwarded.
func (n *Notifier) Allows(kind models.EventKind) bool {
	return len(n.events) == 0 || n.events[kind]
}

// Notify sends msg to all senders if its kind is allowed. One sender failing
// does not stop delivery to the others; the failures are combined.
func (n *Notifier) Notify(ctx context.Context, msg Message) error {
	if !n.Allows(msg.Kind) {
		n.logger.DebugContext(ctx, "event filtered out", "kind", msg.Kind)
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				"sender", s.Name(),
				"kind", msg.Kind,
				"error", err,
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent", "sender", s.Name(), "kind", msg.Kind)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
