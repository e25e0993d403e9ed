// Package queue provides the outbound event queue interfaces and implementations.
package queue

import (
	"context"
	"errors"

	"github.com/factorhub/marketplace/internal/models"
)

// DefaultMaxAttempts is how many deliveries an event gets before it is parked.
const DefaultMaxAttempts = 5

// Common errors returned by queue operations.
var (
	// ErrNoJobs is returned when no events are available in the queue.
	ErrNoJobs = errors.New("no events available")
	// ErrJobNotFound is returned when an event cannot be found.
	ErrJobNotFound = errors.New("event not found")
)

// Queue defines the interface for event queue operations.
type Queue interface {
	// Enqueue adds a new event to the queue.
	// The event will be serialized to JSON for storage.
	Enqueue(ctx context.Context, event *models.Event) error

	// Dequeue retrieves and locks the next available event from the queue.
	// Returns ErrNoJobs if no events are available.
	// Attempts on the returned event counts earlier failed deliveries.
	Dequeue(ctx context.Context) (*models.Event, error)

	// Ack acknowledges successful processing of an event, removing it from the queue.
	Ack(ctx context.Context, eventID string) error

	// Nack indicates that processing failed. The event becomes available for
	// retry until it has failed MaxAttempts times, after which it is marked
	// dead and never delivered again.
	Nack(ctx context.Context, eventID string, cause error) error
}

// Publisher is the narrow side of Queue used by code that only emits events.
type Publisher interface {
	Enqueue(ctx context.Context, event *models.Event) error
}
