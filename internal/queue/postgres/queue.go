// Package postgres provides a PostgreSQL-backed implementation of the event queue.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/queue"
	"github.com/google/uuid"
)

// DefaultVisibilityTimeout is how long an event may stay in processing
// before another worker reclaims it.
const DefaultVisibilityTimeout = 5 * time.Minute

// PostgresQueue implements queue.Queue using PostgreSQL.
type PostgresQueue struct {
	db          *sql.DB
	logger      *slog.Logger
	maxAttempts int
	visibility  time.Duration
	now         func() time.Time
}

// NewPostgresQueue creates a new PostgreSQL-backed queue. The event_queue
// table is created by the store migrations.
func NewPostgresQueue(db *sql.DB, maxAttempts int, logger *slog.Logger) *PostgresQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = queue.DefaultMaxAttempts
	}
	return &PostgresQueue{
		db:          db,
		logger:      logger,
		maxAttempts: maxAttempts,
		visibility:  DefaultVisibilityTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetVisibilityTimeout changes how long an event may stay in processing
// before it is reclaimed. Non-positive values are ignored.
func (q *PostgresQueue) SetVisibilityTimeout(d time.Duration) {
	if d > 0 {
		q.visibility = d
	}
}

// Enqueue adds a new event to the queue.
// The event is serialized to JSON and stored in the event_queue table.
func (q *PostgresQueue) Enqueue(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event to JSON: %w", err)
	}

	query := `
		INSERT INTO event_queue (id, event_data, status, attempts, created_at)
		VALUES ($1, $2, 'pending', 0, $3)`

	_, err = q.db.ExecContext(ctx, query, event.ID, eventData, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting event into queue: %w", err)
	}

	q.logger.Debug("enqueued event", "event_id", event.ID, "kind", event.Kind)
	return nil
}

// Dequeue retrieves and locks the next available event from the queue.
// Uses SELECT FOR UPDATE SKIP LOCKED for concurrent worker safety.
//
// An event left in processing longer than the visibility timeout belongs to
// a worker that died mid-delivery. It is reclaimed as a failed attempt, and
// parked as dead once that exhausts its attempts.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*models.Event, error) {
	for {
		event, reclaimed, err := q.dequeueOne(ctx)
		if err != nil || !reclaimed {
			return event, err
		}
	}
}

// dequeueOne claims one event. It reports reclaimed=true, with a nil event,
// when the row it found was a stale claim that it parked as dead.
func (q *PostgresQueue) dequeueOne(ctx context.Context) (*models.Event, bool, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := q.now()
	selectQuery := `
		SELECT id, event_data, attempts, status
		FROM event_queue
		WHERE status = 'pending'
			OR (status = 'processing' AND started_at < $1)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	var eventID, status string
	var eventData []byte
	var attempts int
	err = tx.QueryRowContext(ctx, selectQuery, now.Add(-q.visibility)).Scan(&eventID, &eventData, &attempts, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, queue.ErrNoJobs
		}
		return nil, false, fmt.Errorf("selecting event from queue: %w", err)
	}

	if status == "processing" {
		attempts++
		q.logger.Warn("reclaiming event from an unresponsive worker", "event_id", eventID, "attempts", attempts)
		if attempts >= q.maxAttempts {
			deadQuery := `
				UPDATE event_queue
				SET status = 'dead', attempts = $2, started_at = NULL,
					last_error = 'visibility timeout expired'
				WHERE id = $1`
			if _, err := tx.ExecContext(ctx, deadQuery, eventID, attempts); err != nil {
				return nil, false, fmt.Errorf("parking stale event: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return nil, false, fmt.Errorf("committing transaction: %w", err)
			}
			q.logger.Warn("event exceeded delivery attempts", "event_id", eventID, "max_attempts", q.maxAttempts)
			return nil, true, nil
		}
	}

	updateQuery := `
		UPDATE event_queue
		SET status = 'processing', started_at = $2, attempts = $3
		WHERE id = $1`

	if _, err := tx.ExecContext(ctx, updateQuery, eventID, now, attempts); err != nil {
		return nil, false, fmt.Errorf("updating event status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing transaction: %w", err)
	}

	var event models.Event
	if err := json.Unmarshal(eventData, &event); err != nil {
		return nil, false, fmt.Errorf("unmarshaling event from JSON: %w", err)
	}
	event.Attempts = attempts

	q.logger.Debug("dequeued event", "event_id", event.ID, "kind", event.Kind, "attempts", attempts)
	return &event, false, nil
}

// Ack acknowledges successful processing of an event, removing it from the queue.
func (q *PostgresQueue) Ack(ctx context.Context, eventID string) error {
	query := `
		DELETE FROM event_queue
		WHERE id = $1 AND status = 'processing'`

	result, err := q.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("deleting event from queue: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return queue.ErrJobNotFound
	}

	q.logger.Debug("acknowledged event", "event_id", eventID)
	return nil
}

// Nack records a failed delivery. Once attempts reach the limit the event is
// marked dead and kept for inspection.
func (q *PostgresQueue) Nack(ctx context.Context, eventID string, cause error) error {
	var lastError sql.NullString
	if cause != nil {
		lastError = sql.NullString{String: cause.Error(), Valid: true}
	}

	query := `
		UPDATE event_queue
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END,
			started_at = NULL,
			last_error = $3
		WHERE id = $1 AND status = 'processing'
		RETURNING status`

	var status string
	err := q.db.QueryRowContext(ctx, query, eventID, q.maxAttempts, lastError).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return queue.ErrJobNotFound
		}
		return fmt.Errorf("updating event status: %w", err)
	}

	if status == "dead" {
		q.logger.Warn("event exceeded delivery attempts", "event_id", eventID, "max_attempts", q.maxAttempts)
	} else {
		q.logger.Debug("nacked event", "event_id", eventID)
	}
	return nil
}
