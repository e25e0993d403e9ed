package models

import "time"

// Notification is an in-app bell entry for one user. There is at most one per
// (event, user), so redelivered events do not duplicate it.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	EventID   string     `json:"event_id"`
	Kind      EventKind  `json:"kind"`
	AssetID   string     `json:"asset_id"`
	BidID     string     `json:"bid_id,omitempty"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsRead returns true if the user has seen the notification.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
