// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/factorhub/marketplace/internal/models"
)

// Common errors returned by every Store implementation.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConcurrentModification is returned when an optimistic locking conflict is detected.
	// This occurs when the version field doesn't match during an update operation.
	ErrConcurrentModification = errors.New("record was modified by another request")
	// ErrInvalidCredentials is returned by UserStore.Authenticate.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// AssetStore defines operations for invoice assets.
type AssetStore interface {
	// Create inserts a new asset. ID and timestamps are filled in when empty.
	Create(ctx context.Context, asset *models.Asset) error
	// Get retrieves an asset by ID.
	Get(ctx context.Context, id string) (*models.Asset, error)
	// GetForUpdate retrieves an asset by ID and locks it until the enclosing
	// transaction ends. Outside a transaction it behaves like Get.
	GetForUpdate(ctx context.Context, id string) (*models.Asset, error)
	// Update writes the asset if its version still matches, and bumps the version.
	Update(ctx context.Context, asset *models.Asset) error
	// ListBySeller retrieves all assets owned by a seller, newest first.
	ListBySeller(ctx context.Context, sellerID string) ([]*models.Asset, error)
	// ListByState retrieves all assets in the given state, newest first.
	ListByState(ctx context.Context, state models.AssetState) ([]*models.Asset, error)
}

// BidStore defines operations for bids.
type BidStore interface {
	// Create inserts a new bid. Returns ErrDuplicate if the buyer already bid on the asset.
	Create(ctx context.Context, bid *models.Bid) error
	// Get retrieves a bid by ID.
	Get(ctx context.Context, id string) (*models.Bid, error)
	// GetByAssetAndBuyer retrieves the single bid a buyer holds on an asset.
	GetByAssetAndBuyer(ctx context.Context, assetID, buyerID string) (*models.Bid, error)
	// ListByAsset retrieves all bids on an asset, oldest first.
	ListByAsset(ctx context.Context, assetID string) ([]*models.Bid, error)
	// ListByAssets retrieves the bids of several assets at once, keyed by asset ID.
	ListByAssets(ctx context.Context, assetIDs []string) (map[string][]*models.Bid, error)
	// ListByBuyer retrieves all bids placed by a buyer, newest first.
	ListByBuyer(ctx context.Context, buyerID string) ([]*models.Bid, error)
	// Update writes the bid if its version still matches, and bumps the version.
	Update(ctx context.Context, bid *models.Bid) error
	// MarkNotified sets a notification flag on the bid. It reports false when
	// the flag was already set, so only one caller ever sends the notification.
	MarkNotified(ctx context.Context, bidID string, flag models.NotificationFlag) (bool, error)
}

// TokenStore defines operations for one-time action tokens.
type TokenStore interface {
	// Create stores a new token. Only the hash is persisted.
	Create(ctx context.Context, token *models.ActionToken) error
	// GetByHash retrieves a token by the hash of its raw value.
	GetByHash(ctx context.Context, hash string) (*models.ActionToken, error)
	// Consume marks the token used. Returns ErrNotFound if it was already consumed.
	Consume(ctx context.Context, id string, at time.Time) error
	// DeleteStale removes tokens that expired or were consumed before the
	// cutoff, and returns how many were removed.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// NotificationStore defines operations for in-app bell notifications.
type NotificationStore interface {
	// Create inserts a notification. It reports false, without error, when
	// the user already has a notification for the same event.
	Create(ctx context.Context, n *models.Notification) (bool, error)
	// ListByUser retrieves a user's notifications, newest first.
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*models.Notification, error)
	// MarkRead marks one of the user's notifications as read.
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	// DeleteReadBefore removes notifications read before the cutoff.
	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
}

// UserStore defines operations for user management.
type UserStore interface {
	// Create creates a new user with a hashed password.
	Create(ctx context.Context, user *models.User, password string) error
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Authenticate verifies credentials and returns the user.
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// Store is the main interface for database operations.
type Store interface {
	// Assets returns the AssetStore for asset operations.
	Assets() AssetStore
	// Bids returns the BidStore for bid operations.
	Bids() BidStore
	// Tokens returns the TokenStore for one-time link tokens.
	Tokens() TokenStore
	// Notifications returns the NotificationStore for bell notifications.
	Notifications() NotificationStore
	// Users returns the UserStore for user operations.
	Users() UserStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
