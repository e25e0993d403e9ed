// Package memory provides an in-process implementation of the store
// interfaces. All access is serialized by a single mutex; a transaction holds
// it for its whole duration and restores a snapshot on error.
package memory

import (
	"context"
	"sync"

	"github.com/factorhub/marketplace/internal/models"
	"github.com/factorhub/marketplace/internal/store"
)

type tables struct {
	assets        map[string]models.Asset
	bids          map[string]models.Bid
	tokens        map[string]models.ActionToken
	notifications map[string]models.Notification
	users         map[string]models.User
}

func newTables() *tables {
	return &tables{
		assets:        make(map[string]models.Asset),
		bids:          make(map[string]models.Bid),
		tokens:        make(map[string]models.ActionToken),
		notifications: make(map[string]models.Notification),
		users:         make(map[string]models.User),
	}
}

// clone copies every table. Row values are copied by value; their pointer
// fields are never mutated in place so sharing them is safe.
func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.assets {
		c.assets[k] = v
	}
	for k, v := range t.bids {
		c.bids[k] = v
	}
	for k, v := range t.tokens {
		c.tokens[k] = v
	}
	for k, v := range t.notifications {
		c.notifications[k] = v
	}
	for k, v := range t.users {
		v.Roles = append([]models.Role(nil), v.Roles...)
		c.users[k] = v
	}
	return c
}

type database struct {
	mu   sync.Mutex
	data *tables
}

// Store implements store.Store in memory.
type Store struct {
	db   *database
	inTx bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{db: &database{data: newTables()}}
}

// do runs fn with the database locked, unless the caller already holds the
// lock through WithTx.
func (s *Store) do(fn func(t *tables) error) error {
	if s.inTx {
		return fn(s.db.data)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db.data)
}

// Assets returns the AssetStore.
func (s *Store) Assets() store.AssetStore { return &assetStore{s} }

// Bids returns the BidStore.
func (s *Store) Bids() store.BidStore { return &bidStore{s} }

// Tokens returns the TokenStore.
func (s *Store) Tokens() store.TokenStore { return &tokenStore{s} }

// Notifications returns the NotificationStore.
func (s *Store) Notifications() store.NotificationStore { return &notificationStore{s} }

// Users returns the UserStore.
func (s *Store) Users() store.UserStore { return &userStore{s} }

// WithTx runs fn while holding the database lock. If fn returns an error
// every change it made is discarded.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.db.data.clone()
	if err := fn(&Store{db: s.db, inTx: true}); err != nil {
		s.db.data = snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
