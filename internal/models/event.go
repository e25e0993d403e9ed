package models

import "time"

// EventKind names a marketplace state change that may produce notifications.
type EventKind string

const (
	EventAssetCreated           EventKind = "asset_created"
	EventFeeApproved            EventKind = "fee_approved"
	EventAssetValidated         EventKind = "asset_validated"
	EventAssetPosted            EventKind = "asset_posted"
	EventAssetCancelled         EventKind = "asset_cancelled"
	EventBidPlaced              EventKind = "bid_placed"
	EventBidAccepted            EventKind = "bid_accepted"
	EventBidRejected            EventKind = "bid_rejected"
	EventBidAcceptanceCancelled EventKind = "bid_acceptance_cancelled"
	EventPaymentConfirmed       EventKind = "payment_confirmed"
)

// ValidEventKinds returns every event kind.
func ValidEventKinds() []EventKind {
	return []EventKind{
		EventAssetCreated,
		EventFeeApproved,
		EventAssetValidated,
		EventAssetPosted,
		EventAssetCancelled,
		EventBidPlaced,
		EventBidAccepted,
		EventBidRejected,
		EventBidAcceptanceCancelled,
		EventPaymentConfirmed,
	}
}

// Event is one unit of work on the notification queue. It is published only
// after the state change it describes has committed.
type Event struct {
	ID      string    `json:"id"`
	Kind    EventKind `json:"kind"`
	AssetID string    `json:"asset_id"`
	BidID   string    `json:"bid_id,omitempty"`
	ActorID string    `json:"actor_id,omitempty"`
	// TokenID names the link token issued with the event, if any. The raw
	// link is derived from it at delivery time.
	TokenID   string    `json:"token_id,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
