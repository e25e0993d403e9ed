package memory

import (
	"context"
	"sort"
	"time"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/google/uuid"
)

type notificationStore struct{ s *Store }

func (r *notificationStore) Create(ctx context.Context, n *models.Notification) (bool, error) {
	var created bool
	err := r.s.do(func(t *tables) error {
		for _, existing := range t.notifications {
			if existing.EventID == n.EventID && existing.UserID == n.UserID {
				return nil
			}
		}
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		t.notifications[n.ID] = *n
		created = true
		return nil
	})
	return created, err
}

func (r *notificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error) {
	var out []*models.Notification
	err := r.s.do(func(t *tables) error {
		for _, n := range t.notifications {
			n := n
			if n.UserID != userID || (unreadOnly && n.IsRead()) {
				continue
			}
			out = append(out, &n)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

func (r *notificationStore) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	return r.s.do(func(t *tables) error {
		n, ok := t.notifications[id]
		if !ok || n.UserID != userID {
			return store.ErrNotFound
		}
		if n.ReadAt == nil {
			n.ReadAt = &at
			t.notifications[id] = n
		}
		return nil
	})
}

func (r *notificationStore) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.s.do(func(t *tables) error {
		for id, note := range t.notifications {
			if note.ReadAt != nil && note.ReadAt.Before(before) {
				delete(t.notifications, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
