package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/queue"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestQueueFIFO(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("events are dequeued in enqueue order", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()
			q := New(3)
			for i := 0; i < n; i++ {
				if err := q.Enqueue(ctx, &models.Event{ID: fmt.Sprintf("e%d", i), Kind: models.EventBidPlaced}); err != nil {
					return false
				}
			}
			for i := 0; i < n; i++ {
				ev, err := q.Dequeue(ctx)
				if err != nil || ev.ID != fmt.Sprintf("e%d", i) {
					return false
				}
				if q.Ack(ctx, ev.ID) != nil {
					return false
				}
			}
			_, err := q.Dequeue(ctx)
			return errors.Is(err, queue.ErrNoJobs)
		},
		gen.IntRange(0, 50),
	))

	properties.Property("an event is delivered at most maxAttempts times", prop.ForAll(
		func(maxAttempts int) bool {
			ctx := context.Background()
			q := New(maxAttempts)
			_ = q.Enqueue(ctx, &models.Event{ID: "e", Kind: models.EventPaymentConfirmed})

			deliveries := 0
			for {
				ev, err := q.Dequeue(ctx)
				if errors.Is(err, queue.ErrNoJobs) {
					break
				}
				if ev.Attempts != deliveries {
					return false
				}
				deliveries++
				_ = q.Nack(ctx, ev.ID, errors.New("smtp down"))
			}
			dead := q.Dead()
			return deliveries == maxAttempts && len(dead) == 1 && dead[0].Attempts == maxAttempts
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

func TestAckUnknownEvent(t *testing.T) {
	q := New(0)
	if err := q.Ack(context.Background(), "missing"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Errorf("Ack missing: got %v, want ErrJobNotFound", err)
	}
	if err := q.Nack(context.Background(), "missing", nil); !errors.Is(err, queue.ErrJobNotFound) {
		t.Errorf("Nack missing: got %v, want ErrJobNotFound", err)
	}
}
