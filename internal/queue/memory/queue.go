// Package memory provides an in-process FIFO implementation of the event queue.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/queue"
	"github.com/google/uuid"
)

type entry struct {
	event    models.Event
	attempts int
	lastErr  string
}

// Queue is an in-memory queue.Queue. Events are delivered in enqueue order;
// a nacked event goes to the back of the line.
type Queue struct {
	mu          sync.Mutex
	pending     []*entry
	inFlight    map[string]*entry
	dead        []*entry
	maxAttempts int
}

// New creates an empty queue.
func New(maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = queue.DefaultMaxAttempts
	}
	return &Queue{
		inFlight:    make(map[string]*entry),
		maxAttempts: maxAttempts,
	}
}

// Enqueue adds an event.
func (q *Queue) Enqueue(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, &entry{event: *event})
	return nil
}

// Dequeue returns the oldest pending event.
func (q *Queue) Dequeue(ctx context.Context) (*models.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, queue.ErrNoJobs
	}
	e := q.pending[0]
	q.pending = q.pending[1:]
	q.inFlight[e.event.ID] = e

	ev := e.event
	ev.Attempts = e.attempts
	return &ev, nil
}

// Ack removes an in-flight event.
func (q *Queue) Ack(ctx context.Context, eventID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inFlight[eventID]; !ok {
		return queue.ErrJobNotFound
	}
	delete(q.inFlight, eventID)
	return nil
}

// Nack requeues an in-flight event or parks it as dead.
func (q *Queue) Nack(ctx context.Context, eventID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inFlight[eventID]
	if !ok {
		return queue.ErrJobNotFound
	}
	delete(q.inFlight, eventID)

	e.attempts++
	if cause != nil {
		e.lastErr = cause.Error()
	}
	if e.attempts >= q.maxAttempts {
		q.dead = append(q.dead, e)
		return nil
	}
	q.pending = append(q.pending, e)
	return nil
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dead returns copies of the events that exhausted their attempts.
func (q *Queue) Dead() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Event, len(q.dead))
	for i, e := range q.dead {
		out[i] = e.event
		out[i].Attempts = e.attempts
	}
	return out
}
